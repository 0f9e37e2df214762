package riverjobs

import (
	"context"
	"errors"
	"time"

	"github.com/riverqueue/river"

	"github.com/open-rails/recoverykit/core"
)

type SweepExpiredArgs struct{}

func (SweepExpiredArgs) Kind() string { return "recoverykit_sweep_expired" }

func (SweepExpiredArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue: river.QueueDefault,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: 5 * time.Minute,
			ByQueue:  true,
		},
	}
}

// Sweeper is satisfied by *core.Service.
type Sweeper interface {
	SweepExpired(ctx context.Context) (core.SweepResult, error)
}

// SweepExpiredWorker deletes expired pending registrations, OTP challenges and
// reset tokens.
type SweepExpiredWorker struct {
	river.WorkerDefaults[SweepExpiredArgs]
	svc Sweeper
}

func NewSweepExpiredWorker(svc Sweeper) *SweepExpiredWorker {
	return &SweepExpiredWorker{svc: svc}
}

func (w *SweepExpiredWorker) Timeout(*river.Job[SweepExpiredArgs]) time.Duration {
	return 2 * time.Minute
}

func (w *SweepExpiredWorker) Work(ctx context.Context, _ *river.Job[SweepExpiredArgs]) error {
	if w == nil || w.svc == nil {
		return errors.New("recoverykit sweep: service not configured")
	}
	_, err := w.svc.SweepExpired(ctx)
	return err
}
