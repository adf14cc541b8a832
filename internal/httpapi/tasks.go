package httpapi

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ahrav/questlog/internal/application"
	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

// proofFields lists the accepted multipart field names for the proof image.
var proofFields = []string{"proofImage", "image"}

type createTaskRequest struct {
	QuestID     string    `json:"quest_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     *flexTime `json:"due_date"`
}

type updateTaskRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	DueDate     *flexTime `json:"due_date"`
	Status      *string   `json:"status"`
}

type verifyResponse struct {
	Verified    bool         `json:"verified"`
	Points      int          `json:"points"`
	Analysis    string       `json:"analysis"`
	Task        *domain.Task `json:"task"`
	RetriesLeft *int         `json:"retries_left,omitempty"`
}

func (s *Server) createTask(c *fiber.Ctx) error {
	var req createTaskRequest
	if err := decodeJSON(c, &req); err != nil {
		return failed("task", err)
	}
	t, err := s.svc.Tasks.Create(c.UserContext(), application.CreateTaskInput{
		OwnerID:     caller(c),
		QuestID:     req.QuestID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate.ptr(),
	})
	if err != nil {
		return failed("quest", err)
	}
	return sendData(c, fiber.StatusCreated, t)
}

func (s *Server) listTasks(c *fiber.Ctx) error {
	tasks, err := s.svc.Tasks.List(c.UserContext(), caller(c), c.Query("quest_id"))
	if err != nil {
		return failed("task", err)
	}
	return sendData(c, fiber.StatusOK, tasks)
}

func (s *Server) getTask(c *fiber.Ctx) error {
	t, err := s.svc.Tasks.Get(c.UserContext(), c.Params("id"), caller(c))
	if err != nil {
		return failed("task", err)
	}
	return sendData(c, fiber.StatusOK, t)
}

func (s *Server) updateTask(c *fiber.Ctx) error {
	var req updateTaskRequest
	if err := decodeJSON(c, &req); err != nil {
		return failed("task", err)
	}
	t, err := s.svc.Tasks.Update(c.UserContext(), application.UpdateTaskInput{
		ID:          c.Params("id"),
		OwnerID:     caller(c),
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate.ptr(),
		Status:      req.Status,
	})
	if err != nil {
		return failed("task", err)
	}
	return sendData(c, fiber.StatusOK, t)
}

func (s *Server) deleteTask(c *fiber.Ctx) error {
	if err := s.svc.Tasks.Delete(c.UserContext(), c.Params("id"), caller(c)); err != nil {
		return failed("task", err)
	}
	return c.JSON(envelope{Success: true})
}

func (s *Server) verifyTask(c *fiber.Ctx) error {
	img, err := s.readProof(c)
	if err != nil {
		return failed("task", err)
	}
	res, err := s.svc.Verifier.Verify(c.UserContext(), application.VerifyRequest{
		TaskID:   c.Params("id"),
		CallerID: caller(c),
		Image:    img,
	})
	if err != nil {
		return failed("task", err)
	}
	return sendData(c, fiber.StatusOK, verifyResponse{
		Verified: res.Verified,
		Points:   res.Points,
		Analysis: res.Analysis,
		Task:     res.Task,
	})
}

func (s *Server) retryTask(c *fiber.Ctx) error {
	img, err := s.readProof(c)
	if err != nil {
		return failed("task", err)
	}
	res, err := s.svc.Verifier.Retry(c.UserContext(), application.RetryRequest{
		TaskID:   c.Params("id"),
		CallerID: caller(c),
		Image:    img,
		Notes:    c.FormValue("notes"),
	})
	if err != nil {
		return failed("task", err)
	}
	left := res.RetriesLeft
	return sendData(c, fiber.StatusOK, verifyResponse{
		Verified:    res.Verified,
		Points:      res.Points,
		Analysis:    res.Analysis,
		Task:        res.Task,
		RetriesLeft: &left,
	})
}

// readProof returns the uploaded image from a multipart body. A
// non-multipart body or a missing file yields an empty image so the
// verifier reports it.
func (s *Server) readProof(c *fiber.Ctx) (ports.Image, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return ports.Image{}, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return ports.Image{}, domain.BadRequest("proof", "invalid multipart body")
	}

	for _, field := range proofFields {
		files := form.File[field]
		if len(files) == 0 {
			continue
		}
		if files[0].Size > s.maxUpload {
			return ports.Image{}, domain.BadRequest("proof", "image exceeds the upload limit")
		}
		return readImage(files[0])
	}
	return ports.Image{}, nil
}

func readImage(header *multipart.FileHeader) (ports.Image, error) {
	file, err := header.Open()
	if err != nil {
		return ports.Image{}, domain.BadRequest("proof", "invalid image upload")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return ports.Image{}, domain.BadRequest("proof", "could not read image upload")
	}
	return ports.Image{MIMEType: header.Header.Get("Content-Type"), Data: data}, nil
}
