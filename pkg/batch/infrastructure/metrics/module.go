package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Module replaces the no-op recorder and tracer of core/metrics when telemetry is enabled
// in the configuration. It must be used together with metrics.Module.
var Module = fx.Options(
	fx.Decorate(DecorateMetricRecorder),
	fx.Decorate(DecorateTracer),
)

// DecorateParams are the Fx inputs of the decorators.
type DecorateParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
}

// DecorateMetricRecorder returns a Prometheus or OTLP recorder according to telemetry.metrics,
// or recorder unchanged when metrics are disabled.
func DecorateMetricRecorder(p DecorateParams, recorder metrics.MetricRecorder) (metrics.MetricRecorder, error) {
	mc := p.Config.Telemetry.Metrics
	if !mc.Enabled {
		return recorder, nil
	}
	switch mc.Exporter {
	case "otlp":
		mp, err := NewMeterProvider(context.Background(), p.Config.Telemetry)
		if err != nil {
			return nil, err
		}
		otel.SetMeterProvider(mp)
		p.Lifecycle.Append(fx.Hook{OnStop: mp.Shutdown})
		return NewOTelRecorder(mp.Meter(TracerName))
	default:
		r := NewPrometheusRecorder()
		serveMetrics(p.Lifecycle, mc.ListenAddress, r.Handler())
		return r, nil
	}
}

// DecorateTracer returns an OTel tracer when telemetry.tracing is enabled.
func DecorateTracer(p DecorateParams, tracer metrics.Tracer) (metrics.Tracer, error) {
	if !p.Config.Telemetry.Tracing.Enabled {
		return tracer, nil
	}
	tp, err := NewTracerProvider(context.Background(), p.Config.Telemetry)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	p.Lifecycle.Append(fx.Hook{OnStop: tp.Shutdown})
	return NewOTelTracer(tp), nil
}

// serveMetrics exposes handler on addr at /metrics for the lifetime of the application.
func serveMetrics(lc fx.Lifecycle, addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			logger.Infof("Metrics: serving Prometheus metrics on %s/metrics.", ln.Addr())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("Metrics: server stopped: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
