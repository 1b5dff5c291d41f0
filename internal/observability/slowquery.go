package observability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type SlowQueryDetector struct {
	warningThreshold  time.Duration
	criticalThreshold time.Duration
	logger            *zap.Logger
}

func NewSlowQueryDetector(warning, critical time.Duration, logger *zap.Logger) *SlowQueryDetector {
	return &SlowQueryDetector{
		warningThreshold:  warning,
		criticalThreshold: critical,
		logger:            logger,
	}
}

func (sqd *SlowQueryDetector) Intercept(ctx context.Context, query string, queryType string, duration time.Duration, resultCount int, methodsDegraded int) {
	// Only log queries that exceed the warning threshold. Fast queries
	// (~99% of traffic) return immediately with zero overhead.
	if duration <= sqd.warningThreshold {
		return
	}

	traceID := TraceIDFromContext(ctx)
	severity := sqd.classifySeverity(duration)

	SlowQueryCounter.WithLabelValues(severity, queryType).Inc()

	sqd.logger.Warn("slow query detected",
		zap.String("trace_id", traceID),
		zap.String("query_hash", hashQueryForLog(query)),
		zap.String("query_type", queryType),
		zap.Float64("duration_ms", float64(duration.Milliseconds())),
		zap.Int("result_count", resultCount),
		zap.Int("methods_degraded", methodsDegraded),
		zap.String("severity", severity),
	)
}

func (sqd *SlowQueryDetector) classifySeverity(d time.Duration) string {
	if d > sqd.criticalThreshold {
		return "critical"
	}
	if d > sqd.warningThreshold {
		return "warning"
	}
	return "normal"
}

func hashQueryForLog(q string) string {
	return fmt.Sprintf("%016x", hashUint64(q))
}

func hashUint64(s string) uint64 {
	h := uint64(0)
	for _, c := range s {
		h = h*31 + uint64(c)
	}
	return h
}
