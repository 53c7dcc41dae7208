package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"github.com/ShayCichocki/verdict/internal/api"
	"github.com/ShayCichocki/verdict/internal/config"
	"github.com/ShayCichocki/verdict/internal/evaluation"
	"github.com/ShayCichocki/verdict/internal/groundwork"
	"github.com/ShayCichocki/verdict/internal/pipeline"
	"github.com/ShayCichocki/verdict/internal/skills"
	"github.com/ShayCichocki/verdict/internal/store"
)

// drainTimeout bounds how long shutdown waits for background runs.
const drainTimeout = 30 * time.Minute

// services is the assembled application graph handed to commands.
type services struct {
	fx.In

	Config     *config.Config
	Store      store.Store
	Router     *api.Router
	Skills     *skills.Registry
	Applier    *skills.Applier
	Evaluation *evaluation.Service
	Groundwork *groundwork.Coordinator
}

// appModule wires every component from the loaded config.
func appModule(c *config.Config, observer pipeline.Observer) fx.Option {
	return fx.Options(
		fx.Supply(c),
		fx.Provide(
			func() pipeline.Observer { return observer },
			newStore,
			newRouter,
			newRegistry,
			newApplier,
			newPipeline,
			newEvaluationService,
			newCoordinator,
		),
		fx.Invoke(watchSkills),
	)
}

func newStore(lc fx.Lifecycle, c *config.Config) (store.Store, error) {
	st, err := store.Open(c.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return st.Close() }})
	return st, nil
}

func newRouter(c *config.Config) *api.Router {
	return api.NewRouter(c)
}

func newRegistry(c *config.Config) (*skills.Registry, error) {
	return skills.NewRegistry(c.Skills.Dir)
}

func newApplier(c *config.Config, router *api.Router) *skills.Applier {
	return skills.NewApplierFromConfig(c.Skills, router)
}

func newPipeline(router *api.Router, registry *skills.Registry, applier *skills.Applier, observer pipeline.Observer) *pipeline.Pipeline {
	return pipeline.New(router,
		pipeline.WithSkills(registry, applier),
		pipeline.WithObserver(observer),
	)
}

func newEvaluationService(lc fx.Lifecycle, c *config.Config, st store.Store, p *pipeline.Pipeline) *evaluation.Service {
	svc := evaluation.NewService(st, p, evaluation.WithMaxIterations(c.Pipeline.MaxIterations))
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		return waitCtx(ctx, svc.Wait)
	}})
	return svc
}

func newCoordinator(lc fx.Lifecycle, st store.Store, router *api.Router) *groundwork.Coordinator {
	coord := groundwork.NewCoordinator(st, router)
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		return waitCtx(ctx, coord.Wait)
	}})
	return coord
}

func watchSkills(lc fx.Lifecycle, c *config.Config, registry *skills.Registry) {
	if !c.Skills.Watch {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := registry.Watch(ctx); err != nil {
				log.Warn().Err(err).Str("dir", registry.Dir()).Msg("skill watch disabled")
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// waitCtx runs wait in the background and returns when it finishes or ctx
// expires.
func waitCtx(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background runs still active: %w", ctx.Err())
	}
}

// withServices builds the graph, runs fn, and shuts the graph down. Shutdown
// waits for background evaluation and groundwork runs to persist.
func withServices(ctx context.Context, c *config.Config, observer pipeline.Observer, fn func(ctx context.Context, s services) error) error {
	var svc services
	app := fx.New(
		appModule(c, observer),
		fx.Invoke(func(s services) { svc = s }),
		fx.StopTimeout(drainTimeout),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	runErr := fn(ctx, svc)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
