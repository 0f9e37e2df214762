package riverjobs

import (
	"fmt"

	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"

	"github.com/open-rails/recoverykit/core"
)

// RegisterWorkers registers the sweep worker and, when sender is non-nil, the
// email delivery worker into a River workers registry.
func RegisterWorkers(ws *river.Workers, svc Sweeper, sender core.EmailSender) {
	river.AddWorker(ws, NewSweepExpiredWorker(svc))
	if sender != nil {
		river.AddWorker(ws, NewSendEmailWorker(sender))
	}
}

// ParseSchedule parses a standard five-field cron spec.
func ParseSchedule(cronSpec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule '%s': %w", cronSpec, err)
	}
	return schedule, nil
}

// AddSweepExpiredPeriodicJob adds a periodic job that enqueues the sweep on a cron schedule.
//
// Example cron: "*/10 * * * *" (every ten minutes).
func AddSweepExpiredPeriodicJob[T any](client *river.Client[T], cronSpec string, runOnStart bool) error {
	schedule, err := ParseSchedule(cronSpec)
	if err != nil {
		return err
	}
	args := SweepExpiredArgs{}
	opts := args.InsertOpts()
	client.PeriodicJobs().Add(
		river.NewPeriodicJob(
			schedule,
			func() (river.JobArgs, *river.InsertOpts) { return args, &opts },
			&river.PeriodicJobOpts{RunOnStart: runOnStart},
		),
	)
	return nil
}
