package impersonation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tenant-gate/internal/domain"
	"tenant-gate/internal/metrics"
)

// Retrier defaults.
const (
	DefaultRetrySchedule = "@every 30s"
	defaultMaxPending    = 1000
	defaultMaxAttempts   = 5
	defaultDrainTimeout  = 10 * time.Second
)

// RetrierConfig configures an AuditRetrier.
type RetrierConfig struct {
	Schedule    string
	MaxPending  int
	MaxAttempts int
	// DrainTimeout bounds one scheduled drain, audit writes included.
	DrainTimeout time.Duration
}

type pendingEntry struct {
	entry    *domain.AuditEntry
	attempts int
}

// AuditRetrier holds audit entries whose first write failed and retries
// them on a cron schedule. Entries are dropped, with an error log, after
// MaxAttempts failures or when the queue is full.
type AuditRetrier struct {
	audit   domain.AuditRepository
	cfg     RetrierConfig
	cron    *cron.Cron
	metrics *metrics.Gate
	logger  *slog.Logger

	drainMu sync.Mutex // one drain at a time
	mu      sync.Mutex
	pending []pendingEntry
}

// NewAuditRetrier creates an AuditRetrier. Nothing runs until Start.
func NewAuditRetrier(audit domain.AuditRepository, cfg RetrierConfig, m *metrics.Gate, logger *slog.Logger) *AuditRetrier {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultRetrySchedule
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaultMaxPending
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRetrier{
		audit:   audit,
		cfg:     cfg,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		metrics: m,
		logger:  logger.With("component", "audit-retrier"),
	}
}

// Enqueue schedules e for a later write.
func (r *AuditRetrier) Enqueue(e *domain.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) >= r.cfg.MaxPending {
		r.metrics.AuditRetry("dropped")
		r.logger.Error("audit retry queue full, dropping entry",
			"action", e.Action, "actor", e.ActorPrincipalID, "tenant", e.TargetTenantID,
			"impersonation_id", e.Metadata[domain.AuditMetaImpersonationID])
		return
	}
	r.pending = append(r.pending, pendingEntry{entry: e})
	r.metrics.AuditRetry("queued")
}

// Pending returns the number of queued entries.
func (r *AuditRetrier) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Drain attempts every queued entry once and returns how many were written.
// Entries not reached before ctx is done stay queued without losing an
// attempt. Concurrent drains run one after the other.
func (r *AuditRetrier) Drain(ctx context.Context) int {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	written := 0
	var retry []pendingEntry
	for i, p := range batch {
		if ctx.Err() != nil {
			retry = append(retry, batch[i:]...)
			break
		}
		if err := r.audit.Insert(ctx, p.entry); err != nil {
			p.attempts++
			if p.attempts >= r.cfg.MaxAttempts {
				r.metrics.AuditRetry("dropped")
				r.logger.Error("audit entry dropped after retries",
					"action", p.entry.Action, "actor", p.entry.ActorPrincipalID,
					"tenant", p.entry.TargetTenantID, "attempts", p.attempts, "error", err)
				continue
			}
			retry = append(retry, p)
			continue
		}
		written++
		r.metrics.AuditRetry(metrics.ResultOK)
	}

	if len(retry) > 0 {
		r.requeue(retry)
	}
	if written > 0 {
		r.logger.Info("deferred audit entries written", "count", written)
	}
	return written
}

// requeue puts retry ahead of entries enqueued during the drain, keeping the
// queue within MaxPending by dropping the newest entries.
func (r *AuditRetrier) requeue(retry []pendingEntry) {
	r.mu.Lock()
	merged := append(retry, r.pending...)
	var overflow []pendingEntry
	if len(merged) > r.cfg.MaxPending {
		overflow = merged[r.cfg.MaxPending:]
		merged = merged[:r.cfg.MaxPending]
	}
	r.pending = merged
	r.mu.Unlock()

	for _, p := range overflow {
		r.metrics.AuditRetry("dropped")
		r.logger.Error("audit retry queue full, dropping entry",
			"action", p.entry.Action, "actor", p.entry.ActorPrincipalID, "tenant", p.entry.TargetTenantID,
			"impersonation_id", p.entry.Metadata[domain.AuditMetaImpersonationID])
	}
}

// drainScheduled is the cron job: one drain bounded by DrainTimeout.
func (r *AuditRetrier) drainScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.DrainTimeout)
	defer cancel()
	r.Drain(ctx)
}

// AddJob registers an additional maintenance job on the retrier's scheduler.
func (r *AuditRetrier) AddJob(spec string, job func()) error {
	_, err := r.cron.AddFunc(spec, job)
	return err
}

// Start registers the drain job and starts the scheduler.
func (r *AuditRetrier) Start() error {
	if _, err := r.cron.AddFunc(r.cfg.Schedule, r.drainScheduled); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("audit retrier started", "schedule", r.cfg.Schedule)
	return nil
}

// Stop stops the scheduler, waits for a running drain, and makes a final
// drain attempt.
func (r *AuditRetrier) Stop(ctx context.Context) {
	<-r.cron.Stop().Done()
	if n := r.Pending(); n > 0 {
		r.Drain(ctx)
	}
	if n := r.Pending(); n > 0 {
		r.logger.Error("audit entries lost at shutdown", "count", n)
	}
	r.logger.Info("audit retrier stopped")
}
