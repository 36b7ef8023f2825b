package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("maimai-scraper")

// SlogAPI implements API using the log/slog package, counts are also
// recorded as otel gauges so they show up when an exporter is configured.
type SlogAPI struct {
	logger *slog.Logger
}

func NewSlogAPI(logger *slog.Logger) SlogAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return SlogAPI{logger: logger}
}

func (s SlogAPI) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func (SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		if err, ok := p.(error); ok {
			*out = append(*out, "err", err)
			continue
		}
		*out = append(
			*out,
			fmt.Sprintf("params.%d", i),
			p,
		)
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	s.log().Error("broken component", remainingPairs...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	s.log().Warn("warning", remainingPairs...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	remainingPairs := []any{}
	s.formatParams(&remainingPairs, params)
	s.log().Debug(message, remainingPairs...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	s.log().Info("count", "id", id, "n", count)

	gauge, err := meter.Int64Gauge(id)
	if err != nil {
		return
	}
	gauge.Record(context.Background(), count, metric.WithAttributes())
}
