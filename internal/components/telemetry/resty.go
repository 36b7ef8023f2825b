package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

var restyTracer = otel.Tracer("maimai-scraper/resty")

type instrumentResty struct {
	tel       API
	idcounter *uint64
}

// InstrumentResty reports every request and response made by the client at
// debug level and records a span for each of them.
func InstrumentResty(client *resty.Client, tel API) {
	var idcounter uint64
	i := instrumentResty{tel: tel, idcounter: &idcounter}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id uint64
	// startTime does not need to rely on chrono because it does not depend on the
	// absolute time, just the difference in time, which can be guaranteed to work.
	startTime time.Time
}

// RequestID returns the id assigned to the request by InstrumentResty, it
// returns 0 for requests that were not instrumented.
func RequestID(ctx context.Context) uint64 {
	rc, ok := ctx.Value(reqCtxKey).(reqCtx)
	if !ok {
		return 0
	}
	return rc.id
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	start := time.Now()
	ctx, _ := restyTracer.Start(req.Context(), "http "+req.Method)

	id := atomic.AddUint64(i.idcounter, 1)
	ctx = context.WithValue(ctx, reqCtxKey, reqCtx{
		id:        id,
		startTime: start,
	})
	i.tel.ReportDebug(report_resty_request, id, req.Method, req.URL)

	req.SetContext(ctx)
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	end := time.Now()
	ctx := res.Request.Context()

	span := trace.SpanFromContext(ctx)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", res.Request.Method),
		attribute.String("http.url", res.Request.URL),
		attribute.Int("http.status_code", res.StatusCode()),
	)

	rc, ok := ctx.Value(reqCtxKey).(reqCtx)
	if !ok {
		return nil
	}

	i.tel.ReportDebug(
		report_resty_response,
		rc.id,
		end.Sub(rc.startTime).String(),
		res.Status(),
	)

	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	end := time.Now()
	ctx := req.Context()

	span := trace.SpanFromContext(ctx)
	defer span.End()
	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")

	var duration time.Duration
	rc, ok := ctx.Value(reqCtxKey).(reqCtx)
	if ok {
		duration = end.Sub(rc.startTime)
	}

	i.tel.ReportBroken(
		report_resty_response,
		err,
		req.Method,
		req.URL,
		duration,
	)
}
