package ports

import (
	"context"
	"time"

	"github.com/ahrav/questlog/internal/domain"
)

// Image is a binary image payload submitted as proof.
type Image struct {
	// MIMEType is the sniffed content type, e.g. "image/png".
	MIMEType string

	// Data holds the raw image bytes.
	Data []byte
}

// LLMClient sends single-turn multimodal requests to a model provider.
type LLMClient interface {
	// Complete sends the prompt and the attached images, in order, and returns
	// the model's text reply. Recognised options are "temperature",
	// "max_tokens", "model", "top_p" and "system".
	Complete(ctx context.Context, prompt string, images []Image, options map[string]any) (string, error)

	// GetModel returns the model identifier used for requests.
	GetModel() string
}

// TaskFilter narrows ListTasks results.
type TaskFilter struct {
	// QuestID restricts results to tasks under one quest when non-empty.
	QuestID string
}

// VerificationWrite carries the fields set by an accepted verification.
type VerificationWrite struct {
	ProofURL string
	Points   int
	Notes    string
	At       time.Time
}

// RetryWrite carries the fields set by an accepted retry together with the
// allowance bucket it is charged to.
type RetryWrite struct {
	// Quarter identifies the allowance bucket, e.g. "Q3 2025".
	Quarter string

	// DefaultAllowance seeds the bucket when it does not exist yet.
	DefaultAllowance int

	ProofURL string
	Points   int
	Notes    string
	At       time.Time
}

// Store is the persistence gateway for quests, tasks and retry allowances.
// Every operation is scoped to an owner: rows belonging to another owner are
// reported as ErrNotFound.
type Store interface {
	// CreateQuest inserts a new quest and returns the stored row.
	CreateQuest(ctx context.Context, q domain.Quest) (*domain.Quest, error)

	// GetQuest returns the quest with the given id owned by ownerID.
	GetQuest(ctx context.Context, id, ownerID string) (*domain.Quest, error)

	// ListQuests returns all quests of the owner, newest first.
	ListQuests(ctx context.Context, ownerID string) ([]domain.Quest, error)

	// UpdateQuest writes the quest's title and is_main fields.
	// Progress and completion are never written here.
	UpdateQuest(ctx context.Context, q domain.Quest) (*domain.Quest, error)

	// DeleteQuest removes the quest and every task under it.
	DeleteQuest(ctx context.Context, id, ownerID string) error

	// SetQuestProgress persists the derived progress fields.
	SetQuestProgress(ctx context.Context, id, ownerID string, progress int, completed bool) error

	// CreateTask inserts a new task and returns the stored row.
	CreateTask(ctx context.Context, t domain.Task) (*domain.Task, error)

	// GetTask returns the task with the given id owned by ownerID.
	GetTask(ctx context.Context, id, ownerID string) (*domain.Task, error)

	// ListTasks returns the owner's tasks, newest first.
	ListTasks(ctx context.Context, ownerID string, filter TaskFilter) ([]domain.Task, error)

	// UpdateTask applies the patch to the stored row in one atomic write and
	// returns the result. completed_at and verified change only when the
	// patch carries a status; proof, points and notes are never touched.
	UpdateTask(ctx context.Context, id, ownerID string, patch domain.TaskPatch, at time.Time) (*domain.Task, error)

	// DeleteTask removes the task.
	DeleteTask(ctx context.Context, id, ownerID string) error

	// ApplyVerification marks the task verified in a single conditional
	// write keyed on (id, owner) and returns the updated row. The write only
	// lands while the task is completed and unverified; otherwise
	// ErrNotEligible is returned.
	ApplyVerification(ctx context.Context, id, ownerID string, w VerificationWrite) (*domain.Task, error)

	// ApplyRetryAward atomically spends one retry chance from the owner's
	// allowance bucket and updates the task. It returns the updated task and
	// the chances left. When no chance is left nothing is written and
	// ErrNoAllowance is returned. A task that is no longer completed yields
	// ErrNotEligible and keeps the allowance.
	ApplyRetryAward(ctx context.Context, id, ownerID string, w RetryWrite) (*domain.Task, int, error)

	// RemainingRetries returns the chances left in the owner's bucket for the
	// quarter, or defaultAllowance if the bucket has not been created yet.
	RemainingRetries(ctx context.Context, ownerID, quarter string, defaultAllowance int) (int, error)
}

// ProofStore persists accepted proof images and returns a reference that is
// stored on the task as its proof URL.
type ProofStore interface {
	// Put stores the image under key and returns its URL.
	Put(ctx context.Context, key string, img Image) (string, error)
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus,
// OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like verification outcomes, errors, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like awarded points.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// Metric names recorded by the application and HTTP layers. LLM client
// metrics are named by the llm package.
const (
	// MetricVerifications counts verification attempts by kind and outcome.
	MetricVerifications = "verifications_total"

	// MetricPointsAwarded observes awarded points by kind and quest category.
	MetricPointsAwarded = "points_awarded"

	MetricHTTPRequests = "http_requests_total"
	MetricHTTPLatency  = "http_request"

	// MetricRetriesLeft reports the chances left after a retry.
	MetricRetriesLeft = "retry_chances_remaining"
)
