package eventstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

// DefaultPruneInterval is how often the retention job runs.
const DefaultPruneInterval = time.Hour

// Retention prunes the ledger on a schedule.
type Retention struct {
	scheduler gocron.Scheduler
	store     Store
	maxAge    time.Duration
	now       func() time.Time
}

// NewRetention schedules a prune of events older than maxAge every
// interval. Call Start to begin and Stop to shut down.
func NewRetention(store Store, maxAge, interval time.Duration) (*Retention, error) {
	if maxAge <= 0 {
		return nil, ferrors.ConfigError("ledger retention must be positive").
			WithContext("retention", maxAge.String()).Build()
	}
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "create retention scheduler").Build()
	}
	r := &Retention{scheduler: s, store: store, maxAge: maxAge, now: time.Now}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(r.prune),
		gocron.WithName("ledger-retention"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "schedule ledger retention").Build()
	}
	return r, nil
}

// Start begins the schedule.
func (r *Retention) Start() {
	slog.Info("Starting ledger retention", slog.Duration("max_age", r.maxAge))
	r.scheduler.Start()
}

// Stop waits for a running prune and shuts the scheduler down.
func (r *Retention) Stop() error {
	return r.scheduler.Shutdown()
}

// PruneNow runs one prune immediately.
func (r *Retention) PruneNow(ctx context.Context) (int64, error) {
	return r.store.Prune(ctx, r.now().Add(-r.maxAge))
}

func (r *Retention) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := r.PruneNow(ctx)
	if err != nil {
		slog.Warn("Ledger retention failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Pruned ledger events", slog.Int64("removed", n))
	}
}
