package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/delaneyj/vyes"
	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/internal/config"
	"github.com/delaneyj/vyes/internal/metrics"
	"github.com/delaneyj/vyes/reactive"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr := cmd.String(addrKey); addr != "" {
		cfg.Addr = addr
	}
	logger := cfg.Logger(os.Stderr)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(cfg, os.DirFS(cfg.Dir), logger, prometheus.NewRegistry()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving", "addr", cfg.Addr, "dir", cfg.Dir, "root", cfg.Root)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
	return g.Wait()
}

// newHandler serves the component files under the configured root with
// their Vyes-* headers and the metrics of /_render under /metrics.
// /_render is a development and diagnostics endpoint that mounts one
// component on a scratch document so its directives can be inspected.
// It is not server-side rendering for clients.
func newHandler(cfg *config.Config, fsys fs.FS, logger *slog.Logger, reg *prometheus.Registry) http.Handler {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(metrics.WithRegistry(reg), metrics.WithNamespace(cfg.Metrics.Namespace))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	r.Get("/_render/*", func(w http.ResponseWriter, req *http.Request) {
		renderPage(w, req, "/"+chi.URLParam(req, "*"), fsys, logger, m)
	})

	header := cfg.Header()
	files := http.FileServer(http.FS(fsys))
	withHeader := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		for k, vs := range header {
			w.Header()[k] = vs
		}
		files.ServeHTTP(w, req)
	})
	if root := strings.TrimSuffix(cfg.Root, "/"); root != "" {
		r.Handle(root+"/*", http.StripPrefix(root, withHeader))
	} else {
		r.Handle("/*", withHeader)
	}
	return r
}

// renderPage mounts the component at url on a fresh document and dumps
// the resulting tree for inspection.
func renderPage(w http.ResponseWriter, req *http.Request, url string, fsys fs.FS, logger *slog.Logger, m *metrics.Metrics) {
	var sysOpts []reactive.Option
	var loaderOpts []fetch.Option
	if m != nil {
		sysOpts = append(sysOpts, reactive.WithObserver(m))
		loaderOpts = append(loaderOpts, fetch.WithObserver(m))
	}
	sysOpts = append(sysOpts, reactive.WithLogger(logger))

	doc := dom.NewDocument()
	host := doc.CreateElement("div")
	doc.Body().AppendChild(host)
	var diags []vyes.Diagnostic
	app := vyes.New(doc,
		vyes.WithLogger(logger),
		vyes.WithSystem(reactive.NewSystem(sysOpts...)),
		vyes.WithSource(fetch.DirSource{FS: fsys}, loaderOpts...),
		vyes.WithDiagnostics(func(d vyes.Diagnostic) { diags = append(diags, d) }),
	)
	defer app.Close()

	status := http.StatusOK
	if err := app.Mount(req.Context(), host, url); err != nil {
		status = http.StatusNotFound
		if !errors.Is(err, fetch.ErrNotFound) {
			status = http.StatusInternalServerError
		}
	}
	settle(app.System())
	for _, d := range diags {
		logger.Warn("render diagnostic", "url", url, "kind", d.Kind, "msg", d.Msg)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Vyes-Diagnostics", fmt.Sprint(len(diags)))
	w.WriteHeader(status)
	if err := dom.Render(w, doc.Root()); err != nil {
		logger.Error("render failed", "url", url, "err", err)
	}
	app.Dispose(host)
}
