// Package stats periodically logs how busy the server is.
package stats

import (
	"context"
	"time"

	"github.com/dkeye/meet/internal/app/orch"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Querier runs a task on the orchestrator loop and waits for it.
type Querier interface {
	Query(ctx context.Context, task orch.Task) error
}

// Pruner drops stale bookkeeping and reports how many entries it removed.
type Pruner interface {
	Prune() int
}

type Reporter struct {
	loop    Querier
	pruners []Pruner
	timeout time.Duration
}

func NewReporter(loop Querier, pruners ...Pruner) *Reporter {
	return &Reporter{loop: loop, pruners: pruners, timeout: 5 * time.Second}
}

// Collect takes one snapshot from the loop.
func (r *Reporter) Collect(ctx context.Context) (orch.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var st orch.Stats
	err := r.loop.Query(ctx, func(o *orch.Orchestrator) { st = o.Stats() })
	return st, err
}

func (r *Reporter) report(ctx context.Context) {
	st, err := r.Collect(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "stats").Msg("collect stats")
		return
	}
	pruned := 0
	for _, p := range r.pruners {
		pruned += p.Prune()
	}
	log.Info().Str("module", "stats").
		Int("rooms", st.Rooms).
		Int("members", st.Members).
		Int("sessions", st.Sessions).
		Int("pruned", pruned).
		Msg("room stats")
}

// Run reports on the cron schedule until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() { r.report(ctx) }); err != nil {
		return err
	}
	c.Start()
	log.Info().Str("module", "stats").Str("schedule", schedule).Msg("stats job started")
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
