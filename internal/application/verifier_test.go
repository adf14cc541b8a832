package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
	"github.com/ahrav/questlog/internal/testutils"
)

const owner = "user-1"

var fixedNow = time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

// memProofs is a ports.ProofStore that keeps keys in memory.
type memProofs struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *memProofs) Put(_ context.Context, key string, img ports.Image) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.keys = append(m.keys, key)
	return "mem://" + key + "?" + img.MIMEType, nil
}

// recordingMetrics is a ports.MetricsCollector that counts calls.
type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
	hist     []float64
	gauges   map[string]float64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[string]float64{}, gauges: map[string]float64{}}
}

func (r *recordingMetrics) RecordLatency(string, time.Duration, map[string]string) {}

func (r *recordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[metric+"/"+labels["kind"]+"/"+labels["outcome"]] += value
}

func (r *recordingMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[metric] = value
}

func (r *recordingMetrics) RecordHistogram(_ string, value float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hist = append(r.hist, value)
}

type verifyFixture struct {
	store    *testutils.MemoryStore
	llm      *testutils.MockLLMClient
	proofs   *memProofs
	metrics  *recordingMetrics
	verifier *Verifier
	quest    *domain.Quest
	task     *domain.Task
}

// newVerifyFixture creates one quest with one completed, unverified task.
func newVerifyFixture(t *testing.T, isMain bool, opts ...VerifierOption) *verifyFixture {
	t.Helper()
	ctx := context.Background()

	f := &verifyFixture{
		store:   testutils.NewMemoryStore(),
		llm:     testutils.NewMockLLMClient("vision-test"),
		proofs:  &memProofs{},
		metrics: newRecordingMetrics(),
	}

	classifier, err := NewClassifier(f.llm)
	require.NoError(t, err)

	opts = append([]VerifierOption{WithClock(func() time.Time { return fixedNow }), WithVerifierMetrics(f.metrics)}, opts...)
	f.verifier, err = NewVerifier(f.store, classifier, f.proofs, opts...)
	require.NoError(t, err)

	f.quest, err = f.store.CreateQuest(ctx, domain.Quest{OwnerID: owner, Title: "Ship v1", IsMain: isMain, Quarter: "Q3 2025"})
	require.NoError(t, err)
	task, err := f.store.CreateTask(ctx, domain.Task{OwnerID: owner, QuestID: f.quest.ID, Title: "Design landing page"})
	require.NoError(t, err)
	f.task = f.setStatus(t, task.ID, domain.StatusCompleted)
	return f
}

func (f *verifyFixture) setStatus(t *testing.T, id string, st domain.TaskStatus) *domain.Task {
	t.Helper()
	saved, err := f.store.UpdateTask(context.Background(), id, owner, domain.TaskPatch{Status: &st}, fixedNow)
	require.NoError(t, err)
	return saved
}

func (f *verifyFixture) reload(t *testing.T) (*domain.Task, *domain.Quest) {
	t.Helper()
	task, err := f.store.GetTask(context.Background(), f.task.ID, owner)
	require.NoError(t, err)
	quest, err := f.store.GetQuest(context.Background(), f.quest.ID, owner)
	require.NoError(t, err)
	return task, quest
}

func TestVerifier_Verify_Accepted(t *testing.T) {
	tests := []struct {
		name   string
		isMain bool
		points int
	}{
		{"main quest", true, 5},
		{"side quest", false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newVerifyFixture(t, tt.isMain)

			res, err := f.verifier.Verify(context.Background(), VerifyRequest{
				TaskID:   f.task.ID,
				CallerID: owner,
				Image:    testutils.PNGProof(),
			})
			require.NoError(t, err)

			assert.True(t, res.Verified)
			assert.Equal(t, tt.points, res.Points)
			assert.Equal(t, testutils.AcceptResponse, res.Analysis)
			assert.True(t, res.Task.Verified)
			assert.Equal(t, tt.points, res.Task.PointsAwarded)

			task, quest := f.reload(t)
			assert.True(t, task.Verified)
			assert.Equal(t, testutils.AcceptResponse, task.VerificationNotes)
			assert.True(t, strings.HasPrefix(task.ProofURL, "mem://"+f.task.ID+"/"))
			assert.True(t, strings.HasSuffix(task.ProofURL, "?image/png"))
			assert.Equal(t, 100, quest.Progress)
			assert.True(t, quest.Completed)

			assert.Equal(t, 1.0, f.metrics.counters[ports.MetricVerifications+"/verify/accepted"])
			assert.Equal(t, []float64{float64(tt.points)}, f.metrics.hist)
		})
	}
}

func TestVerifier_Verify_SendsImageAndTaskContext(t *testing.T) {
	f := newVerifyFixture(t, true)
	img := testutils.PNGProof()
	img.MIMEType = "application/octet-stream"

	_, err := f.verifier.Verify(context.Background(), VerifyRequest{TaskID: f.task.ID, CallerID: owner, Image: img})
	require.NoError(t, err)

	calls := f.llm.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Images, 1)
	assert.Equal(t, "image/png", calls[0].Images[0].MIMEType, "type is sniffed from content")
	assert.Contains(t, calls[0].Prompt, "Design landing page")
}

func TestVerifier_Verify_Rejected(t *testing.T) {
	f := newVerifyFixture(t, true)
	f.llm.SetResponse(testutils.RejectResponse)

	res, err := f.verifier.Verify(context.Background(), VerifyRequest{TaskID: f.task.ID, CallerID: owner, Image: testutils.PNGProof()})
	assert.Nil(t, res)
	require.ErrorIs(t, err, domain.ErrVerificationRejected)

	var rej *domain.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, testutils.RejectResponse, rej.Analysis)

	task, quest := f.reload(t)
	assert.False(t, task.Verified)
	assert.Zero(t, task.PointsAwarded)
	assert.Empty(t, task.ProofURL)
	assert.Zero(t, quest.Progress)
	assert.Empty(t, f.proofs.keys)
	assert.Equal(t, 1.0, f.metrics.counters[ports.MetricVerifications+"/verify/rejected"])
}

func TestVerifier_Verify_AmbiguousVerdictRejected(t *testing.T) {
	f := newVerifyFixture(t, true)
	f.llm.SetResponse("##yes## looks right, although ##no## the date is wrong")

	_, err := f.verifier.Verify(context.Background(), VerifyRequest{TaskID: f.task.ID, CallerID: owner, Image: testutils.PNGProof()})
	assert.ErrorIs(t, err, domain.ErrVerificationRejected)
}

func TestVerifier_Verify_ClassifierUnavailable(t *testing.T) {
	f := newVerifyFixture(t, true)
	f.llm.SetError(errors.New("connection reset"))

	_, err := f.verifier.Verify(context.Background(), VerifyRequest{TaskID: f.task.ID, CallerID: owner, Image: testutils.PNGProof()})
	require.ErrorIs(t, err, domain.ErrClassifierUnavailable)

	task, _ := f.reload(t)
	assert.False(t, task.Verified)
}

func TestVerifier_Verify_ChecksBeforeClassifying(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T, f *verifyFixture, req *VerifyRequest)
		wantErr error
	}{
		{
			name:    "no image",
			mutate:  func(_ *testing.T, _ *verifyFixture, req *VerifyRequest) { req.Image = ports.Image{} },
			wantErr: domain.ErrBadRequest,
		},
		{
			name: "not an image",
			mutate: func(_ *testing.T, _ *verifyFixture, req *VerifyRequest) {
				req.Image = ports.Image{MIMEType: "image/png", Data: []byte("just some text")}
			},
			wantErr: domain.ErrBadRequest,
		},
		{
			name:    "missing task id",
			mutate:  func(_ *testing.T, _ *verifyFixture, req *VerifyRequest) { req.TaskID = "" },
			wantErr: domain.ErrBadRequest,
		},
		{
			name:    "other owner",
			mutate:  func(_ *testing.T, _ *verifyFixture, req *VerifyRequest) { req.CallerID = "intruder" },
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "unknown task",
			mutate:  func(_ *testing.T, _ *verifyFixture, req *VerifyRequest) { req.TaskID = "does-not-exist" },
			wantErr: domain.ErrNotFound,
		},
		{
			name: "task not completed",
			mutate: func(t *testing.T, f *verifyFixture, _ *VerifyRequest) {
				f.setStatus(t, f.task.ID, domain.StatusInProgress)
			},
			wantErr: domain.ErrTaskNotEligible,
		},
		{
			name: "already verified",
			mutate: func(t *testing.T, f *verifyFixture, _ *VerifyRequest) {
				_, err := f.store.ApplyVerification(context.Background(), f.task.ID, owner, ports.VerificationWrite{Points: 5, At: fixedNow})
				require.NoError(t, err)
			},
			wantErr: domain.ErrTaskNotEligible,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newVerifyFixture(t, true)
			req := VerifyRequest{TaskID: f.task.ID, CallerID: owner, Image: testutils.PNGProof()}
			tt.mutate(t, f, &req)

			_, err := f.verifier.Verify(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.llm.CallCount(), "classifier must not be called")
		})
	}
}

func TestVerifier_Verify_ProofStoreFailure(t *testing.T) {
	f := newVerifyFixture(t, true)
	f.proofs.err = errors.New("bucket unavailable")

	_, err := f.verifier.Verify(context.Background(), VerifyRequest{TaskID: f.task.ID, CallerID: owner, Image: testutils.PNGProof()})
	assert.ErrorIs(t, err, domain.ErrPersistence)

	task, _ := f.reload(t)
	assert.False(t, task.Verified)
}

func TestVerifier_Retry_Policies(t *testing.T) {
	tests := []struct {
		name         string
		policy       domain.RetryPolicy
		verifyFirst  bool
		wantPoints   int
		wantVerified bool
	}{
		{"additive after verification", domain.RetryAdditive, true, 5 + 15, true},
		{"additive on unverified task", domain.RetryAdditive, false, 5 + 15, true},
		{"recompute", domain.RetryRecompute, true, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newVerifyFixture(t, true, WithRetrySettings(RetrySettings{Policy: tt.policy, Increment: 15, Allowance: 3}))
			ctx := context.Background()

			if tt.verifyFirst {
				_, err := f.verifier.Verify(ctx, VerifyRequest{TaskID: f.task.ID, CallerID: owner, Image: testutils.PNGProof()})
				require.NoError(t, err)
			}

			res, err := f.verifier.Retry(ctx, RetryRequest{
				TaskID:   f.task.ID,
				CallerID: owner,
				Image:    testutils.PNGProof(),
				Notes:    "better angle",
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantPoints, res.Points)
			assert.Equal(t, tt.wantVerified, res.Verified)
			assert.Equal(t, 2, res.RetriesLeft)

			task, quest := f.reload(t)
			assert.Equal(t, tt.wantPoints, task.PointsAwarded)
			assert.Equal(t, 1, task.RetryCount)
			assert.True(t, task.Verified)
			assert.Contains(t, task.VerificationNotes, testutils.AcceptResponse)
			assert.Contains(t, task.VerificationNotes, "better angle")
			assert.Equal(t, 100, quest.Progress)

			left, err := f.store.RemainingRetries(ctx, owner, "Q3 2025", 3)
			require.NoError(t, err)
			assert.Equal(t, 2, left)
			assert.Equal(t, 2.0, f.metrics.gauges[ports.MetricRetriesLeft])
		})
	}
}

func TestVerifier_Retry_QuotaExhausted(t *testing.T) {
	f := newVerifyFixture(t, true)
	f.store.SetRemainingRetries(owner, "Q3 2025", 0)

	_, err := f.verifier.Retry(context.Background(), RetryRequest{TaskID: f.task.ID, CallerID: owner, Image: testutils.PNGProof()})
	assert.ErrorIs(t, err, domain.ErrQuotaExhausted)
	assert.Zero(t, f.llm.CallCount())
}

func TestVerifier_Retry_RejectionSpendsNothing(t *testing.T) {
	f := newVerifyFixture(t, true)
	f.llm.SetResponse(testutils.RejectResponse)

	_, err := f.verifier.Retry(context.Background(), RetryRequest{TaskID: f.task.ID, CallerID: owner, Image: testutils.PNGProof()})
	require.ErrorIs(t, err, domain.ErrVerificationRejected)

	left, err := f.store.RemainingRetries(context.Background(), owner, "Q3 2025", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, left)
}

func TestVerifier_Retry_RunsOutAfterAllowance(t *testing.T) {
	f := newVerifyFixture(t, false)
	ctx := context.Background()

	for want := 2; want >= 0; want-- {
		res, err := f.verifier.Retry(ctx, RetryRequest{TaskID: f.task.ID, CallerID: owner, Image: testutils.PNGProof()})
		require.NoError(t, err)
		assert.Equal(t, want, res.RetriesLeft)
	}

	calls := f.llm.CallCount()
	_, err := f.verifier.Retry(ctx, RetryRequest{TaskID: f.task.ID, CallerID: owner, Image: testutils.PNGProof()})
	assert.ErrorIs(t, err, domain.ErrQuotaExhausted)
	assert.Equal(t, calls, f.llm.CallCount())

	task, _ := f.reload(t)
	assert.Equal(t, 2+3*15, task.PointsAwarded)
}

func TestVerifier_Retry_RequiresCompletedTask(t *testing.T) {
	f := newVerifyFixture(t, true)
	f.setStatus(t, f.task.ID, domain.StatusPending)

	_, err := f.verifier.Retry(context.Background(), RetryRequest{TaskID: f.task.ID, CallerID: owner, Image: testutils.PNGProof()})
	assert.ErrorIs(t, err, domain.ErrTaskNotEligible)
	assert.Zero(t, f.llm.CallCount())
}

func TestNewVerifier_Errors(t *testing.T) {
	classifier, err := NewClassifier(testutils.NewMockLLMClient("m"))
	require.NoError(t, err)
	store := testutils.NewMemoryStore()

	_, err = NewVerifier(nil, classifier, &memProofs{})
	assert.Error(t, err)
	_, err = NewVerifier(store, nil, &memProofs{})
	assert.Error(t, err)
	_, err = NewVerifier(store, classifier, nil)
	assert.Error(t, err)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "accepted", outcomeOf(nil))
	assert.Equal(t, "rejected", outcomeOf(domain.NewRejectionError("x")))
	assert.Equal(t, "quota_exhausted", outcomeOf(ports.ErrNoAllowance))
	assert.Equal(t, "not_found", outcomeOf(ports.ErrNotFound))
	assert.Equal(t, "error", outcomeOf(errors.New("boom")))
}
