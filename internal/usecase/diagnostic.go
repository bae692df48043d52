package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mei-diagnostic/internal/domain"
)

// CNPJLength is the number of digits in a normalized CNPJ.
const CNPJLength = 14

// ValidEntityID reports whether id normalizes to a full CNPJ.
func ValidEntityID(id string) bool {
	return len(NormalizeEntityID(id)) == CNPJLength
}

// DiagnosticConfig carries the settings the engine reads on every run.
type DiagnosticConfig struct {
	WebhookURL    string
	HeaderName    string
	IdentityField string
	Estimator     EstimatorConfig
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
	// TickInterval is the period of the elapsed-time callback; zero means one
	// second.
	TickInterval time.Duration
}

// RunOption customizes a single run.
type RunOption func(*runOptions)

type runOptions struct {
	onTick func(seconds int)
}

// WithTicker registers a callback invoked once per tick while the run is in
// flight. It is for progress display only.
func WithTicker(fn func(seconds int)) RunOption {
	return func(o *runOptions) { o.onTick = fn }
}

// DiagnosticUseCase orchestrates fetch, normalize, classify and estimate, and
// publishes the result to the snapshot store.
type DiagnosticUseCase struct {
	cfg        DiagnosticConfig
	transport  *Transport
	normalizer *Normalizer
	classifier *Classifier
	estimator  *Estimator
	store      *SnapshotStore
	logger     *zap.Logger

	tokens atomic.Uint64
	mu     sync.Mutex
	latest map[string]uint64
	// publishing serializes the check-then-save of each entity without
	// holding mu across a store write.
	publishing map[string]*sync.Mutex
}

// NewDiagnosticUseCase wires the engine.
func NewDiagnosticUseCase(cfg DiagnosticConfig, transport *Transport, store *SnapshotStore, logger *zap.Logger) *DiagnosticUseCase {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "cnpj"
	}
	if cfg.IdentityField == "" {
		cfg.IdentityField = "cnpj"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagnosticUseCase{
		cfg:        cfg,
		transport:  transport,
		normalizer: NewNormalizer(),
		classifier: NewClassifier(cfg.Now),
		estimator:  NewEstimator(cfg.Estimator, cfg.Now),
		store:      store,
		logger:     logger,
		latest:     make(map[string]uint64),
		publishing: make(map[string]*sync.Mutex),
	}
}

// Warm loads the cached snapshot for entityID so callers have something to
// show before a fresh run completes.
func (uc *DiagnosticUseCase) Warm(ctx context.Context, entityID string) (*domain.DiagnosticSnapshot, error) {
	snapshot, err := uc.store.Load(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("could not warm snapshot cache: %w", err)
	}
	if snapshot != nil {
		uc.logger.Info("loaded cached snapshot",
			zap.String("entity_id", NormalizeEntityID(entityID)),
			zap.Time("computed_at", snapshot.ComputedAt))
	}
	return snapshot, nil
}

// Current returns the active snapshot for entityID, if any.
func (uc *DiagnosticUseCase) Current(entityID string) *domain.DiagnosticSnapshot {
	return uc.store.Peek(entityID)
}

// Run performs one full diagnostic. The returned report is never nil; its Err
// is also returned as the error.
func (uc *DiagnosticUseCase) Run(ctx context.Context, entityID string, opts ...RunOption) (*domain.RunReport, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	id := NormalizeEntityID(entityID)
	start := uc.cfg.Now()
	report := &domain.RunReport{
		RunID:    uuid.NewString(),
		EntityID: id,
		State:    domain.RunIdle,
	}
	logger := uc.logger.With(zap.String("run_id", report.RunID), zap.String("entity_id", id))
	narrator := NewNarrator(report.RunID, uc.cfg.Now, logger)

	stop := uc.startTicker(ctx, o.onTick)
	defer func() {
		stop()
		report.Narration = narrator.Lines()
		report.Elapsed = uc.cfg.Now().Sub(start)
	}()

	if len(id) != CNPJLength {
		narrator.Sayf("rejected identifier %q", entityID)
		return uc.fail(report, narrator, logger, fmt.Errorf("%w: %q has %d digits", domain.ErrInvalidEntityID, entityID, len(id)))
	}

	report.Token = uc.issue(id)
	narrator.Sayf("diagnostic started for %s (run %d)", id, report.Token)

	// Step 1: fetch
	uc.advance(report, narrator, domain.RunFetching)
	body, err := uc.transport.Fetch(ctx, domain.UpstreamRequest{
		URL:           uc.cfg.WebhookURL,
		EntityID:      id,
		HeaderName:    uc.cfg.HeaderName,
		IdentityField: uc.cfg.IdentityField,
	}, narrator)
	if err != nil {
		return uc.fail(report, narrator, logger, fmt.Errorf("could not fetch diagnostic: %w", err))
	}

	// Step 2: normalize
	uc.advance(report, narrator, domain.RunNormalizing)
	canonical, err := uc.normalizer.Normalize(body, narrator)
	if err != nil {
		return uc.fail(report, narrator, logger, fmt.Errorf("could not normalize diagnostic: %w", err))
	}

	// Step 3: classify
	uc.advance(report, narrator, domain.RunClassifying)
	obligations := uc.classifier.ClassifyPeriodic(canonical.PeriodicRaw, narrator)
	filings := uc.classifier.ClassifyAnnual(canonical.AnnualRaw, narrator)

	snapshot := &domain.DiagnosticSnapshot{
		EntityID:            id,
		PeriodicObligations: obligations,
		AnnualFilings:       filings,
		ComputedAt:          uc.cfg.Now(),
	}
	for _, f := range filings {
		if f.DerivedStatus == domain.FilingPending {
			snapshot.PendingFilingCount++
		}
	}

	// Step 4: estimate
	uc.advance(report, narrator, domain.RunEstimating)
	est := uc.estimator.Estimate(obligations, filings, narrator)
	snapshot.TotalDebt = est.TotalDebt
	snapshot.EstimatedPeriods = est.Periods
	snapshot.IsEstimated = est.IsEstimated
	snapshot.ComplianceState = domain.ComplianceIrregular
	if snapshot.TotalDebt.IsZero() && snapshot.PendingFilingCount == 0 {
		snapshot.ComplianceState = domain.ComplianceRegular
	}

	report.Snapshot = snapshot
	report.Applied = uc.publish(ctx, report.Token, snapshot, narrator, logger)
	uc.advance(report, narrator, domain.RunComplete)
	narrator.Sayf("outcome: %s, total debt R$ %s, %d pending declarations",
		snapshot.ComplianceState, snapshot.TotalDebt.StringFixed(2), snapshot.PendingFilingCount)
	logger.Info("diagnostic complete",
		zap.String("compliance", string(snapshot.ComplianceState)),
		zap.String("total_debt", snapshot.TotalDebt.StringFixed(2)),
		zap.Bool("estimated", snapshot.IsEstimated),
		zap.Bool("applied", report.Applied))
	return report, nil
}

// publish writes snapshot only when token is still the latest issued for the
// entity, so a slow earlier run cannot overwrite a newer result.
func (uc *DiagnosticUseCase) publish(ctx context.Context, token uint64, snapshot *domain.DiagnosticSnapshot, n *Narrator, logger *zap.Logger) bool {
	lock := uc.publishLock(snapshot.EntityID)
	lock.Lock()
	defer lock.Unlock()

	if latest := uc.latestToken(snapshot.EntityID); latest != token {
		n.Sayf("run %d superseded by run %d, result discarded", token, latest)
		logger.Info("discarding stale diagnostic", zap.Uint64("token", token), zap.Uint64("latest", latest))
		return false
	}
	if err := uc.store.Save(ctx, snapshot.EntityID, snapshot); err != nil {
		n.Sayf("snapshot kept in memory only: %v", err)
		logger.Warn("could not persist snapshot", zap.Error(err))
	}
	return true
}

func (uc *DiagnosticUseCase) publishLock(entityID string) *sync.Mutex {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	lock, ok := uc.publishing[entityID]
	if !ok {
		lock = &sync.Mutex{}
		uc.publishing[entityID] = lock
	}
	return lock
}

func (uc *DiagnosticUseCase) latestToken(entityID string) uint64 {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.latest[entityID]
}

func (uc *DiagnosticUseCase) issue(entityID string) uint64 {
	token := uc.tokens.Add(1)
	uc.mu.Lock()
	uc.latest[entityID] = token
	uc.mu.Unlock()
	return token
}

func (uc *DiagnosticUseCase) advance(report *domain.RunReport, n *Narrator, next domain.RunState) {
	report.State = next
	n.Sayf("stage: %s", next)
}

func (uc *DiagnosticUseCase) fail(report *domain.RunReport, n *Narrator, logger *zap.Logger, err error) (*domain.RunReport, error) {
	report.FailedDuring = report.State
	report.State = domain.RunFailed
	report.Err = err
	report.Error = err.Error()
	n.Sayf("diagnostic failed: %v", err)
	logger.Warn("diagnostic failed", zap.String("stage", string(report.FailedDuring)), zap.Error(err))
	return report, err
}

// startTicker runs the cosmetic elapsed-time counter. The returned function
// stops it and waits for the goroutine to exit.
func (uc *DiagnosticUseCase) startTicker(ctx context.Context, onTick func(int)) func() {
	if onTick == nil {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(uc.cfg.TickInterval)
		defer ticker.Stop()
		seconds := 0
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				seconds++
				onTick(seconds)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// IsUpstreamFailure reports whether err came from transport exhaustion.
func IsUpstreamFailure(err error) bool {
	return errors.Is(err, domain.ErrUpstreamUnavailable)
}
