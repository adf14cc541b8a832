package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ahrav/questlog/internal/application"
)

type createQuestRequest struct {
	Title   string `json:"title"`
	IsMain  bool   `json:"is_main"`
	Quarter string `json:"quarter"`
}

type quarterSetupRequest struct {
	Quarter    string   `json:"quarter"`
	MainQuest  string   `json:"main_quest"`
	SideQuests []string `json:"side_quests"`
}

// updateQuestRequest omits progress and completed: both are derived.
type updateQuestRequest struct {
	Title  *string `json:"title"`
	IsMain *bool   `json:"is_main"`
}

func (s *Server) createQuest(c *fiber.Ctx) error {
	var req createQuestRequest
	if err := decodeJSON(c, &req); err != nil {
		return failed("quest", err)
	}
	q, err := s.svc.Quests.Create(c.UserContext(), application.CreateQuestInput{
		OwnerID: caller(c),
		Title:   req.Title,
		IsMain:  req.IsMain,
		Quarter: req.Quarter,
	})
	if err != nil {
		return failed("quest", err)
	}
	return sendData(c, fiber.StatusCreated, q)
}

func (s *Server) setupQuarter(c *fiber.Ctx) error {
	var req quarterSetupRequest
	if err := decodeJSON(c, &req); err != nil {
		return failed("quest", err)
	}
	quests, err := s.svc.Quests.SetupQuarter(c.UserContext(), application.QuarterSetupInput{
		OwnerID:    caller(c),
		Quarter:    req.Quarter,
		MainQuest:  req.MainQuest,
		SideQuests: req.SideQuests,
	})
	if err != nil {
		return failed("quest", err)
	}
	return sendData(c, fiber.StatusCreated, quests)
}

func (s *Server) listQuests(c *fiber.Ctx) error {
	quests, err := s.svc.Quests.List(c.UserContext(), caller(c))
	if err != nil {
		return failed("quest", err)
	}
	return sendData(c, fiber.StatusOK, quests)
}

func (s *Server) getQuest(c *fiber.Ctx) error {
	q, err := s.svc.Quests.Get(c.UserContext(), c.Params("id"), caller(c))
	if err != nil {
		return failed("quest", err)
	}
	return sendData(c, fiber.StatusOK, q)
}

func (s *Server) updateQuest(c *fiber.Ctx) error {
	var req updateQuestRequest
	if err := decodeJSON(c, &req); err != nil {
		return failed("quest", err)
	}
	q, err := s.svc.Quests.Update(c.UserContext(), application.UpdateQuestInput{
		ID:      c.Params("id"),
		OwnerID: caller(c),
		Title:   req.Title,
		IsMain:  req.IsMain,
	})
	if err != nil {
		return failed("quest", err)
	}
	return sendData(c, fiber.StatusOK, q)
}

func (s *Server) deleteQuest(c *fiber.Ctx) error {
	if err := s.svc.Quests.Delete(c.UserContext(), c.Params("id"), caller(c)); err != nil {
		return failed("quest", err)
	}
	return c.JSON(envelope{Success: true})
}

func (s *Server) recomputeQuest(c *fiber.Ctx) error {
	q, err := s.svc.Quests.Recompute(c.UserContext(), c.Params("id"), caller(c))
	if err != nil {
		return failed("quest", err)
	}
	return sendData(c, fiber.StatusOK, q)
}

func (s *Server) dashboard(c *fiber.Ctx) error {
	d, err := s.svc.Dashboard.Get(c.UserContext(), caller(c))
	if err != nil {
		return failed("dashboard", err)
	}
	return sendData(c, fiber.StatusOK, d)
}
