package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eakyurek/context-search/internal/config"
	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/observability"
	"github.com/eakyurek/context-search/internal/resilience"
)

// DispatchResult carries the raw per-method output of one fan-out.
type DispatchResult struct {
	PerMethod map[models.MethodID][]models.SearchMatch
	Timings   map[models.MethodID]time.Duration
	Degraded  []models.MethodID
}

// Dispatcher runs every registered method concurrently over the catalog. A
// method that errors, times out, or trips its breaker contributes zero
// matches and is reported as degraded; it never fails the overall search.
type Dispatcher struct {
	methods  []Method
	breakers map[models.MethodID]*gobreaker.CircuitBreaker
	timeout  time.Duration
	logger   *zap.Logger
}

func NewDispatcher(methods []Method, cfg config.SearchConfig, logger *zap.Logger) *Dispatcher {
	breakers := make(map[models.MethodID]*gobreaker.CircuitBreaker, len(methods))
	for _, m := range methods {
		breakers[m.ID()] = resilience.NewCircuitBreaker("search-method-"+string(m.ID()), cfg.CircuitBreaker, logger)
	}
	return &Dispatcher{
		methods:  methods,
		breakers: breakers,
		timeout:  cfg.MethodTimeout,
		logger:   logger,
	}
}

// Dispatch fans out to all methods with a per-method deadline and collects
// top 2*limit matches per method to give the fusion stage headroom.
func (d *Dispatcher) Dispatch(ctx context.Context, query string, products []models.Product, limit int) *DispatchResult {
	perMethodLimit := limit * 2

	result := &DispatchResult{
		PerMethod: make(map[models.MethodID][]models.SearchMatch, len(d.methods)),
		Timings:   make(map[models.MethodID]time.Duration, len(d.methods)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range d.methods {
		m := m
		g.Go(func() error {
			start := time.Now()
			matches, err := d.runMethodSafe(gctx, m, query, products, perMethodLimit)
			elapsed := time.Since(start)

			status := "ok"
			if err != nil {
				status = "error"
			}
			observability.MethodDuration.WithLabelValues(string(m.ID()), status).Observe(elapsed.Seconds())

			mu.Lock()
			defer mu.Unlock()
			result.Timings[m.ID()] = elapsed
			if err != nil {
				d.logger.Warn("search method degraded",
					zap.String("method", string(m.ID())),
					zap.Duration("elapsed", elapsed),
					zap.Error(err),
				)
				observability.MethodDegraded.WithLabelValues(string(m.ID()), degradeReason(err)).Inc()
				result.Degraded = append(result.Degraded, m.ID())
				result.PerMethod[m.ID()] = nil
				return nil
			}
			result.PerMethod[m.ID()] = matches
			return nil
		})
	}
	// Errors are swallowed per method; Wait only joins the goroutines.
	_ = g.Wait()
	return result
}

// runMethodSafe converts a panicking method into a degraded one; a single
// misbehaving method must never take down the whole search.
func (d *Dispatcher) runMethodSafe(ctx context.Context, m Method, query string, products []models.Product, limit int) (matches []models.SearchMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			matches, err = nil, fmt.Errorf("method %s panicked: %v", m.ID(), r)
		}
	}()
	return d.runMethod(ctx, m, query, products, limit)
}

func (d *Dispatcher) runMethod(ctx context.Context, m Method, query string, products []models.Product, limit int) ([]models.SearchMatch, error) {
	mctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	mctx, span := observability.StartSpan(mctx, "search."+string(m.ID()))
	defer span.End()

	out, err := d.breakers[m.ID()].Execute(func() (any, error) {
		return m.Search(mctx, query, products, limit)
	})
	if err != nil {
		return nil, err
	}
	matches, _ := out.([]models.SearchMatch)
	return matches, nil
}

func degradeReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	default:
		return "error"
	}
}
