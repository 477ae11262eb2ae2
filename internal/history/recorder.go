package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/intent"
	"go.uber.org/zap"
)

const defaultRecordTimeout = 10 * time.Second

// Recorder validates and stores processed intents.
type Recorder struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
	newID   func() string
	wg      sync.WaitGroup
}

type RecorderOption func(*Recorder)

// WithRecordTimeout bounds each asynchronous write.
func WithRecordTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.timeout = d }
}

func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

func NewRecorder(store Store, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		store:   store,
		logger:  logger,
		timeout: defaultRecordTimeout,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores one intent and returns its id. An empty type is derived from
// the step descriptions.
func (r *Recorder) Record(ctx context.Context, req intent.RecordRequest) (string, error) {
	rec, err := r.build(req)
	if err != nil {
		return "", err
	}
	if err := r.store.Insert(ctx, rec); err != nil {
		return "", clierr.Wrap(clierr.CodeStorage, "store intent", err)
	}
	r.logger.Debug("intent recorded", zap.String("id", rec.ID), zap.String("type", string(rec.Type)))
	return rec.ID, nil
}

// RecordAsync stores the intent in the background with its own deadline.
// Failures are logged and never reach the caller.
func (r *Recorder) RecordAsync(req intent.RecordRequest) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.Record(ctx, req); err != nil {
			r.logger.Warn("failed to record intent",
				zap.String("user", req.UserAddress),
				zap.String("type", string(req.Type)),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every pending asynchronous write has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Fetch returns the user's intents, newest first.
func (r *Recorder) Fetch(ctx context.Context, userAddress string, limit int) ([]intent.StoredIntent, error) {
	if strings.TrimSpace(userAddress) == "" {
		return nil, clierr.New(clierr.CodeUsage, "userAddress is required")
	}
	records, err := r.store.ListByUser(ctx, userAddress, limit)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeStorage, "fetch intents", err)
	}
	return records, nil
}

func (r *Recorder) build(req intent.RecordRequest) (intent.StoredIntent, error) {
	user := strings.TrimSpace(req.UserAddress)
	if user == "" {
		return intent.StoredIntent{}, clierr.New(clierr.CodeUsage, "userAddress is required")
	}
	typ := req.Type
	if typ == "" {
		typ = intent.DeriveStepsType(req.Steps)
	}
	if !intent.ValidIntentType(string(typ)) {
		return intent.StoredIntent{}, clierr.New(clierr.CodeUsage, "unknown intent type "+string(typ))
	}
	chain := strings.TrimSpace(req.Chain)
	if chain == "" {
		chain = intent.PlanChain(req.Steps)
	}
	steps := make([]intent.Step, len(req.Steps))
	for i, step := range req.Steps {
		if step.Status != intent.StepComplete {
			step.TransactionHash = ""
		}
		step.Transfer = nil
		steps[i] = step
	}
	return intent.StoredIntent{
		ID:          r.newID(),
		UserAddress: user,
		Description: strings.TrimSpace(req.Description),
		Chain:       chain,
		Type:        typ,
		Steps:       steps,
		CreatedAt:   r.now(),
	}, nil
}
