package service

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"time"

	"github.com/limbo/cadence/internal/repository"
	"github.com/robfig/cron/v3"
)

const (
	defaultReplenishSpec = "0 2 * * *"
	replenishHorizonDays = 14
	replenishRunTimeout  = 5 * time.Minute
	elapsedGraceHours    = 24
)

// Replenisher keeps every active routine topped up with future instances and
// sweeps elapsed ones through their makeup strategy. One run is independent
// of the previous: a missed tick just means the next run covers more ground.
type Replenisher struct {
	routines *RoutineService
	repo     repository.RoutinesRepositoryI
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewReplenisher(routines *RoutineService, routinesRepo repository.RoutinesRepositoryI, logger *slog.Logger) *Replenisher {
	if routines == nil || routinesRepo == nil {
		log.Fatal("on replenisher provided nil dependencies")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", "replenisher"))
	return &Replenisher{
		routines: routines,
		repo:     routinesRepo,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start schedules the periodic run. An empty spec falls back to one run
// every night.
func (r *Replenisher) Start(spec string) error {
	if spec == "" {
		spec = defaultReplenishSpec
	}
	_, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), replenishRunTimeout)
		defer cancel()
		r.RunOnce(ctx)
	})
	if err != nil {
		return errors.New("replenisher schedule error: " + err.Error())
	}
	r.cron.Start()
	r.logger.Info("replenisher started", slog.String("spec", spec))
	return nil
}

// Stop waits for an in-flight run to finish.
func (r *Replenisher) Stop() error {
	<-r.cron.Stop().Done()
	return nil
}

// RunOnce performs a single replenish pass. Failures on one template are
// logged and do not block the rest.
func (r *Replenisher) RunOnce(ctx context.Context) {
	now := time.Now().UTC()
	templates, err := r.repo.GetActiveTemplates(ctx)
	if err != nil {
		r.logger.Error("replenisher list templates failed", slog.String("error", err.Error()))
		return
	}
	generated := 0
	for _, tpl := range templates {
		created, err := r.routines.GenerateInstances(ctx, tpl.ID, now, now.Add(replenishHorizonDays*24*time.Hour))
		if err != nil {
			r.logger.Error("replenisher generation failed",
				slog.String("template_id", tpl.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		generated += len(created)
	}

	cutoff := now.Add(-elapsedGraceHours * time.Hour)
	elapsed, err := r.repo.GetPendingElapsed(ctx, cutoff)
	if err != nil {
		r.logger.Error("replenisher elapsed sweep failed", slog.String("error", err.Error()))
		return
	}
	handled := 0
	for _, inst := range elapsed {
		if err := r.routines.HandleElapsedInstance(ctx, inst); err != nil {
			r.logger.Warn("replenisher makeup failed",
				slog.String("instance_id", inst.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		handled++
	}
	r.logger.Info("replenisher run finished",
		slog.Int("templates", len(templates)),
		slog.Int("generated", generated),
		slog.Int("elapsed_handled", handled))
}
