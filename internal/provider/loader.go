package provider

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/observability"
)

const (
	defaultProbeTimeout = 3 * time.Second
	defaultLoadTimeout  = 2 * time.Minute
)

// Loader memoizes model initialization. Concurrent callers share a single
// load; once the model is ready later calls return immediately. A failed
// load leaves the loader unready so the next call tries again.
type Loader struct {
	model        Model
	probeTimeout time.Duration
	loadTimeout  time.Duration
	logger       *slog.Logger

	ready atomic.Bool
	group singleflight.Group
}

// NewLoader creates a Loader for model. A non-positive probeTimeout uses the default.
func NewLoader(model Model, probeTimeout time.Duration, logger *slog.Logger) *Loader {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &Loader{
		model:        model,
		probeTimeout: probeTimeout,
		loadTimeout:  defaultLoadTimeout,
		logger:       logger,
	}
}

// Load makes sure the model is ready. The shared load is detached from
// ctx: a caller that gives up stops waiting but the load carries on for
// everyone else.
func (l *Loader) Load(ctx context.Context) error {
	if l.ready.Load() {
		return nil
	}

	ch := l.group.DoChan("load", func() (interface{}, error) {
		if l.ready.Load() {
			return nil, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.loadTimeout)
		defer cancel()
		return nil, l.load(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			l.logger.Debug("joined in-flight model load")
		}
		return res.Err
	case <-ctx.Done():
		return domain.ErrModelUnavailable.WithError(ctx.Err())
	}
}

func (l *Loader) load(ctx context.Context) error {
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, l.probeTimeout)
	defer cancel()

	if err := l.model.Probe(probeCtx); err != nil {
		observability.ModelLoads.WithLabelValues("unavailable").Inc()
		l.logger.Warn("face model assets unreachable",
			slog.Duration("probe_timeout", l.probeTimeout),
			slog.Any("error", err),
		)
		return domain.ErrModelUnavailable.WithError(err)
	}

	if err := l.model.Load(ctx); err != nil {
		observability.ModelLoads.WithLabelValues("failed").Inc()
		l.logger.Error("face model load failed", slog.Any("error", err))
		return domain.ErrModelUnavailable.WithError(err)
	}

	l.ready.Store(true)
	observability.ModelLoads.WithLabelValues("loaded").Inc()
	l.logger.Info("face model loaded", slog.Duration("took", time.Since(start)))
	return nil
}

// Ready reports whether the model has been loaded.
func (l *Loader) Ready() bool {
	return l.ready.Load()
}

// Reset forgets a previous successful load.
func (l *Loader) Reset() {
	l.ready.Store(false)
}
