package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

// Verification kinds used in metrics and logs.
const (
	kindVerify = "verify"
	kindRetry  = "retry"
)

// RetrySettings configures retry allowances and awards.
type RetrySettings struct {
	Policy    domain.RetryPolicy
	Increment int

	// Allowance seeds each owner's per-quarter bucket.
	Allowance int
}

// DefaultRetrySettings returns the additive policy with a 15 point
// increment and three chances per quarter.
func DefaultRetrySettings() RetrySettings {
	return RetrySettings{Policy: domain.RetryAdditive, Increment: 15, Allowance: 3}
}

// VerifyRequest is a first proof submission for a completed task.
type VerifyRequest struct {
	TaskID   string `json:"task_id" validate:"required"`
	CallerID string `json:"caller_id" validate:"required"`
	Image    ports.Image
}

// RetryRequest resubmits proof for a completed task, spending one retry
// chance when accepted.
type RetryRequest struct {
	TaskID   string `json:"task_id" validate:"required"`
	CallerID string `json:"caller_id" validate:"required"`
	Image    ports.Image
	Notes    string `json:"notes" validate:"max=2000"`
}

// VerificationResult is returned for an accepted proof.
type VerificationResult struct {
	Task     *domain.Task
	Points   int
	Analysis string
	Verified bool

	// RetriesLeft is set by Retry only.
	RetriesLeft int
}

// Verifier runs the proof verification pipeline: validate the request and
// ownership, classify the image, parse the verdict, award points, persist
// and recompute quest progress.
type Verifier struct {
	store      ports.Store
	classifier *Classifier
	proofs     ports.ProofStore
	progress   *ProgressAggregator

	tariff  domain.PointTariff
	retry   RetrySettings
	metrics ports.MetricsCollector
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTariff sets the point tariff for first verifications.
func WithTariff(t domain.PointTariff) VerifierOption {
	return func(v *Verifier) { v.tariff = t }
}

// WithRetrySettings sets the retry policy, increment and allowance.
func WithRetrySettings(r RetrySettings) VerifierOption {
	return func(v *Verifier) { v.retry = r }
}

// WithVerifierMetrics records verification outcomes to m.
func WithVerifierMetrics(m ports.MetricsCollector) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(l *zap.Logger) VerifierOption {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier wires the verification pipeline.
func NewVerifier(store ports.Store, classifier *Classifier, proofs ports.ProofStore, opts ...VerifierOption) (*Verifier, error) {
	if store == nil {
		return nil, errors.New("verifier: store cannot be nil")
	}
	if classifier == nil {
		return nil, errors.New("verifier: classifier cannot be nil")
	}
	if proofs == nil {
		return nil, errors.New("verifier: proof store cannot be nil")
	}

	v := &Verifier{
		store:      store,
		classifier: classifier,
		proofs:     proofs,
		tariff:     domain.DefaultPointTariff(),
		retry:      DefaultRetrySettings(),
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("questlog/verifier"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.progress = NewProgressAggregator(store, v.logger)
	return v, nil
}

// Verify judges a first proof for a completed, unverified task. Ownership
// and input are checked before the classifier is called. A rejected proof
// returns a *domain.RejectionError and leaves the task untouched.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	ctx, span := v.tracer.Start(ctx, "Verifier.Verify",
		trace.WithAttributes(attribute.String("task.id", req.TaskID)),
	)
	defer span.End()

	res, err := v.verify(ctx, req)
	v.observe(span, kindVerify, res, err)
	return res, err
}

func (v *Verifier) verify(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	if err := validateInput("verification", req); err != nil {
		return nil, err
	}
	img, err := validateProof(req.Image)
	if err != nil {
		return nil, err
	}

	task, quest, err := v.loadTask(ctx, req.TaskID, req.CallerID)
	if err != nil {
		return nil, err
	}
	if !task.AwaitingProof() {
		return nil, fmt.Errorf("%w: task must be completed and not yet verified", domain.ErrTaskNotEligible)
	}

	raw, err := v.judge(ctx, *task, img, "")
	if err != nil {
		return nil, err
	}

	now := v.now()
	points := v.tariff.Award(quest.IsMain)
	proofURL, err := v.storeProof(ctx, task.ID, img, now)
	if err != nil {
		return nil, err
	}

	updated, err := v.store.ApplyVerification(ctx, task.ID, req.CallerID, ports.VerificationWrite{
		ProofURL: proofURL,
		Points:   points,
		Notes:    raw,
		At:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("apply verification: %w", err)
	}

	v.recompute(ctx, quest.ID, req.CallerID)
	v.recordPoints(kindVerify, quest.IsMain, points)

	return &VerificationResult{
		Task:     updated,
		Points:   points,
		Analysis: raw,
		Verified: true,
	}, nil
}

// Retry judges a resubmitted proof for a completed task. It requires a
// retry chance in the caller's current quarter; the chance is spent only
// when the proof is accepted and the award is written.
func (v *Verifier) Retry(ctx context.Context, req RetryRequest) (*VerificationResult, error) {
	ctx, span := v.tracer.Start(ctx, "Verifier.Retry",
		trace.WithAttributes(
			attribute.String("task.id", req.TaskID),
			attribute.String("retry.policy", string(v.retry.Policy)),
		),
	)
	defer span.End()

	res, err := v.retryTask(ctx, req)
	v.observe(span, kindRetry, res, err)
	return res, err
}

func (v *Verifier) retryTask(ctx context.Context, req RetryRequest) (*VerificationResult, error) {
	if err := validateInput("retry", req); err != nil {
		return nil, err
	}
	img, err := validateProof(req.Image)
	if err != nil {
		return nil, err
	}

	task, quest, err := v.loadTask(ctx, req.TaskID, req.CallerID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: task must be completed before retrying", domain.ErrTaskNotEligible)
	}

	quarter := domain.QuarterOf(v.now())
	remaining, err := v.store.RemainingRetries(ctx, req.CallerID, quarter, v.retry.Allowance)
	if err != nil {
		return nil, fmt.Errorf("check retry allowance: %w", err)
	}
	if remaining <= 0 {
		return nil, fmt.Errorf("retry %s: %w", quarter, domain.ErrQuotaExhausted)
	}

	raw, err := v.judge(ctx, *task, img, req.Notes)
	if err != nil {
		return nil, err
	}

	now := v.now()
	points := domain.RetryAward(v.retry.Policy, *task, v.tariff.Award(quest.IsMain), v.retry.Increment)
	proofURL, err := v.storeProof(ctx, task.ID, img, now)
	if err != nil {
		return nil, err
	}

	updated, left, err := v.store.ApplyRetryAward(ctx, task.ID, req.CallerID, ports.RetryWrite{
		Quarter:          quarter,
		DefaultAllowance: v.retry.Allowance,
		ProofURL:         proofURL,
		Points:           points,
		Notes:            retryNotes(raw, req.Notes),
		At:               now,
	})
	if err != nil {
		return nil, fmt.Errorf("apply retry award: %w", err)
	}

	v.recompute(ctx, quest.ID, req.CallerID)
	v.recordPoints(kindRetry, quest.IsMain, points)
	if v.metrics != nil {
		v.metrics.RecordGauge(ports.MetricRetriesLeft, float64(left), nil)
	}

	return &VerificationResult{
		Task:        updated,
		Points:      points,
		Analysis:    raw,
		Verified:    true,
		RetriesLeft: left,
	}, nil
}

// loadTask fetches the task and its parent quest, both scoped to the
// caller.
func (v *Verifier) loadTask(ctx context.Context, taskID, callerID string) (*domain.Task, *domain.Quest, error) {
	task, err := v.store.GetTask(ctx, taskID, callerID)
	if err != nil {
		return nil, nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	quest, err := v.store.GetQuest(ctx, task.QuestID, callerID)
	if err != nil {
		return nil, nil, fmt.Errorf("quest %s: %w", task.QuestID, err)
	}
	return task, quest, nil
}

// judge classifies the proof and parses the verdict.
func (v *Verifier) judge(ctx context.Context, task domain.Task, img ports.Image, notes string) (string, error) {
	prompt, err := BuildProofPrompt(task, notes)
	if err != nil {
		return "", err
	}

	raw, err := v.classifier.Classify(ctx, img, prompt)
	if err != nil {
		v.logger.Error("proof classification failed",
			zap.String("task_id", task.ID),
			zap.String("owner_id", task.OwnerID),
			zap.Error(err),
		)
		return "", err
	}

	if verdict := domain.ParseVerdict(raw); !verdict.Accepted {
		v.logger.Info("proof rejected",
			zap.String("task_id", task.ID),
			zap.String("owner_id", task.OwnerID),
		)
		return "", domain.NewRejectionError(verdict.Raw)
	}
	return raw, nil
}

func (v *Verifier) storeProof(ctx context.Context, taskID string, img ports.Image, now time.Time) (string, error) {
	key := taskID + "/" + strconv.FormatInt(now.UnixNano(), 10)
	url, err := v.proofs.Put(ctx, key, img)
	if err != nil {
		return "", fmt.Errorf("%w: store proof: %w", domain.ErrPersistence, err)
	}
	return url, nil
}

// recompute refreshes quest progress. The verification is already durable
// at this point, so a failure is logged rather than returned.
func (v *Verifier) recompute(ctx context.Context, questID, ownerID string) {
	if _, err := v.progress.Recompute(ctx, questID, ownerID); err != nil {
		v.logger.Warn("progress recompute failed",
			zap.String("quest_id", questID),
			zap.Error(err),
		)
	}
}

func (v *Verifier) recordPoints(kind string, isMain bool, points int) {
	if v.metrics == nil {
		return
	}
	category := "side"
	if isMain {
		category = "main"
	}
	v.metrics.RecordHistogram(ports.MetricPointsAwarded, float64(points), map[string]string{
		"kind":     kind,
		"category": category,
	})
}

// observe records the outcome on the span, the metrics collector and the
// log.
func (v *Verifier) observe(span trace.Span, kind string, res *VerificationResult, err error) {
	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("verification.outcome", outcome))
	if err != nil && outcome != "rejected" {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if res != nil {
		span.SetAttributes(attribute.Int("verification.points", res.Points))
		v.logger.Info("proof accepted",
			zap.String("kind", kind),
			zap.String("task_id", res.Task.ID),
			zap.String("owner_id", res.Task.OwnerID),
			zap.Int("points", res.Points),
		)
	}

	if v.metrics != nil {
		v.metrics.RecordCounter(ports.MetricVerifications, 1, map[string]string{
			"kind":    kind,
			"outcome": outcome,
		})
	}
}

// outcomeOf buckets an error into a low-cardinality metric label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrVerificationRejected):
		return "rejected"
	case errors.Is(err, domain.ErrBadRequest):
		return "bad_request"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrTaskNotEligible):
		return "not_eligible"
	case errors.Is(err, domain.ErrQuotaExhausted):
		return "quota_exhausted"
	case errors.Is(err, domain.ErrClassifierUnavailable):
		return "classifier_unavailable"
	default:
		return "error"
	}
}

// validateProof rejects missing and non-image uploads. The MIME type is
// taken from the content, not from the client.
func validateProof(img ports.Image) (ports.Image, error) {
	if len(img.Data) == 0 {
		return ports.Image{}, domain.BadRequest("proof", "no image uploaded")
	}
	mt := mimetype.Detect(img.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return ports.Image{}, domain.BadRequest("proof", "uploaded file must be an image, got "+mt.String())
	}
	img.MIMEType = mt.String()
	return img, nil
}

// retryNotes stores the classifier analysis followed by the user's notes.
func retryNotes(analysis, userNotes string) string {
	userNotes = strings.TrimSpace(userNotes)
	if userNotes == "" {
		return analysis
	}
	return analysis + "\n\nUser notes: " + userNotes
}
