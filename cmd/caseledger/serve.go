package main

import (
	"caseledger/internal/adapters/httpapi"
	"caseledger/internal/blob"
	"caseledger/internal/core"
	"caseledger/internal/report"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func runServe(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "serve")
	addr := fs.String("addr", a.cfg.HTTP.Addr, "listen address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	svc, err := a.service(ctx, core.WithMetricsRecorder(recorder))
	if err != nil {
		return err
	}
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return fmt.Errorf("open artifact storage: %w", err)
	}
	pub := report.NewPublisher(svc, store, report.WithLogger(a.logger))
	pub.Start()

	handler := httpapi.NewHandler(svc,
		httpapi.WithReports(pub),
		httpapi.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		httpapi.WithLogger(a.logger),
	)
	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		_ = pub.Stop(context.Background())
		return fmt.Errorf("listen %s: %w", *addr, err)
	}
	return serveUntilDone(ctx, a, ln, handler, pub)
}

// serveUntilDone serves on ln until ctx is canceled, then drains requests and
// the report worker within the shutdown timeout.
func serveUntilDone(ctx context.Context, a *app, ln net.Listener, handler http.Handler, pub *report.Publisher) error {
	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: a.cfg.HTTP.ReadTimeout,
		WriteTimeout:      a.cfg.HTTP.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.logger.Info("serving registry", "addr", ln.Addr().String(), "storage", string(a.cfg.Storage.Driver), "blob", string(a.cfg.Blob.Driver))

	select {
	case err := <-errCh:
		_ = pub.Stop(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := a.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a.logger.Info("shutting down")
	err := srv.Shutdown(shutdownCtx)
	if perr := pub.Stop(shutdownCtx); err == nil {
		err = perr
	}
	if serr := <-errCh; err == nil && !errors.Is(serr, http.ErrServerClosed) {
		err = serr
	}
	return err
}
