// Package fetch loads component files and the modules they import.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	neturl "net/url"
	"strings"
	"sync"
	"time"

	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/reactive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/delaneyj/vyes/fetch"

// Observer receives one call per FetchTemplate.
type Observer interface {
	Fetched(url string, d time.Duration, cached bool, err error)
}

// EnvHook initializes the shared environment of a root the first time it
// is seen, after the root's env.js module (if any) has run.
type EnvHook func(root string, env Env)

// Loader resolves, fetches, parses and caches component files for one
// document.
type Loader struct {
	doc      *dom.Document
	src      Source
	sys      *reactive.System
	logger   *slog.Logger
	observer Observer
	router   any
	hook     EnvHook
	globals  map[string]any
	tracer   trace.Tracer

	group   singleflight.Group
	mu      sync.Mutex
	cache   map[string]*Artifact
	modules map[string]expr.Module
	envs    map[string]Env
	appRoot *string

	headMu sync.Mutex
}

type Option func(*Loader)

func WithLogger(l *slog.Logger) Option { return func(x *Loader) { x.logger = l } }

// WithSystem sets the reactive system that owns each root's $G store.
func WithSystem(s *reactive.System) Option { return func(x *Loader) { x.sys = s } }

func WithObserver(o Observer) Option { return func(x *Loader) { x.observer = o } }

// WithRouter sets the $router of the application root. Other roots get an
// inert router.
func WithRouter(r any) Option { return func(x *Loader) { x.router = r } }

func WithEnvHook(h EnvHook) Option { return func(x *Loader) { x.hook = h } }

// WithGlobals sets host globals visible to module code.
func WithGlobals(g map[string]any) Option { return func(x *Loader) { x.globals = g } }

func NewLoader(doc *dom.Document, src Source, opts ...Option) *Loader {
	l := &Loader{
		doc:     doc,
		src:     src,
		logger:  slog.Default(),
		cache:   map[string]*Artifact{},
		modules: map[string]expr.Module{},
		envs:    map[string]Env{},
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.sys == nil {
		l.sys = reactive.NewSystem(reactive.WithLogger(l.logger))
	}
	return l
}

func (l *Loader) Document() *dom.Document { return l.doc }

// Resolve normalizes a component URL: empty and "/" mean /root.html,
// relative paths become absolute, absolute paths get the env root and a
// leading "@" marks a URL used verbatim.
func (l *Loader) Resolve(u string, env Env) string {
	if u == "" || u == "/" {
		u = "/root.html"
	}
	if !hasScheme(u) && !strings.HasPrefix(u, "@") && !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	if root := env.Root(); root != "" && strings.HasPrefix(u, "/") {
		u = root + u
	}
	return strings.TrimPrefix(u, "@")
}

// Cached returns the artifact cached for a resolved URL.
func (l *Loader) Cached(url string) (*Artifact, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.cache[url]
	return a, ok
}

// FetchTemplate returns the artifact for u. Failures never surface as
// errors: the returned artifact carries Err and a fallback body instead.
// Concurrent requests for the same URL share one fetch.
func (l *Loader) FetchTemplate(ctx context.Context, u string, env Env, allowRoot bool) *Artifact {
	u = l.Resolve(u, env)
	start := time.Now()
	if a, ok := l.Cached(u); ok {
		l.observe(u, start, true, a.Err)
		return a
	}
	ctx, span := l.tracer.Start(ctx, "vyes.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("vyes.url", u)),
	)
	defer span.End()

	v, _, _ := l.group.Do(u, func() (any, error) {
		if a, ok := l.Cached(u); ok {
			return a, nil
		}
		a := l.load(ctx, u, allowRoot)
		l.mu.Lock()
		l.cache[u] = a
		l.mu.Unlock()
		return a, nil
	})
	a := v.(*Artifact)
	if a.Err != nil {
		span.RecordError(a.Err)
		span.SetStatus(codes.Error, a.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	l.observe(u, start, false, a.Err)
	return a
}

func (l *Loader) observe(u string, start time.Time, cached bool, err error) {
	if l.observer != nil {
		l.observer.Fetched(u, time.Since(start), cached, err)
	}
}

func (l *Loader) load(ctx context.Context, u string, allowRoot bool) *Artifact {
	env := Env{}
	resp, err := l.src.Open(ctx, u)
	if err != nil {
		return l.notFound(u, env, err)
	}
	for k, vs := range resp.Header {
		k = strings.ToLower(k)
		if strings.HasPrefix(k, "vyes-") && len(vs) > 0 {
			env[strings.TrimPrefix(k, "vyes-")] = vs[0]
		}
	}
	root := env.Root()
	if hasScheme(u) {
		if parsed, err := neturl.Parse(u); err == nil {
			root = parsed.Scheme + "://" + parsed.Host + root
			env["root"] = root
		}
	}
	for k, v := range l.Environment(ctx, root, env) {
		env[k] = v
	}
	a, err := l.ParseArtifact(ctx, resp.Body, env, u, allowRoot)
	if err != nil {
		return l.notFound(u, env, err)
	}
	return a
}

func (l *Loader) notFound(u string, env Env, err error) *Artifact {
	if !errors.Is(err, ErrNotFound) {
		l.logger.Warn("fetch failed", "url", u, "err", err)
	}
	body := l.doc.CreateElement("div")
	body.SetAttr("style", "height:100%;width:100%;display:grid;place-items:center")
	if herr := body.SetInnerHTML(NotFound(u)); herr != nil {
		body.SetTextContent("404 " + u)
	}
	return &Artifact{URL: trimHTML(u), Body: body, Env: env, Err: err}
}

// Environment returns the environment shared by every component served
// under root, creating it from seed on first use. The first root seen is
// the application root and gets the router.
func (l *Loader) Environment(ctx context.Context, root string, seed Env) Env {
	l.mu.Lock()
	env, ok := l.envs[root]
	if ok {
		l.mu.Unlock()
		return env
	}
	env = seed.Merge(Env{
		"root": root,
		"$G":   l.sys.NewObject(nil, nil),
		"$bus": NewBus(l.logger),
	})
	if l.appRoot == nil {
		l.appRoot = &root
	}
	if *l.appRoot == root && l.router != nil {
		env["$router"] = l.router
	} else {
		env["$router"] = map[string]any{
			"addRoutes":   func(...any) any { return nil },
			"beforeEnter": func(...any) any { return nil },
		}
	}
	l.envs[root] = env
	l.mu.Unlock()

	l.initEnv(ctx, root, env)
	return env
}

func (l *Loader) initEnv(ctx context.Context, root string, env Env) {
	mod, err := l.LoadModule(ctx, root+"/env.js")
	switch {
	case err == nil:
		if def, ok := mod["default"]; ok {
			if _, err := expr.Call(def, map[string]any(env)); err != nil {
				l.logger.Warn("env.js failed", "root", root, "err", err)
			}
		}
	case errors.Is(err, expr.ErrModuleNotFound):
		l.logger.Debug("no env.js", "root", root)
	default:
		l.logger.Warn("loading env.js failed", "root", root, "err", err)
	}
	if l.hook != nil {
		l.hook(root, env)
	}
}

// LoadModule fetches and evaluates a module. It implements
// expr.ModuleLoader; results are cached by URL.
func (l *Loader) LoadModule(ctx context.Context, u string) (expr.Module, error) {
	l.mu.Lock()
	mod, ok := l.modules[u]
	l.mu.Unlock()
	if ok {
		return mod, nil
	}
	v, err, _ := l.group.Do("module:"+u, func() (any, error) {
		resp, err := l.src.Open(ctx, u)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", expr.ErrModuleNotFound, u)
			}
			return nil, err
		}
		imported := map[string]any{}
		code, err := expr.PreprocessImports(ctx, string(resp.Body), expr.ImportOptions{
			Base:   pathOf(u),
			Loader: l,
			Bind:   func(name string, v any) { imported[name] = v },
			Logger: l.logger,
		})
		if err != nil {
			return nil, err
		}
		mod, err := expr.EvalModule(ctx, code, &expr.Scope{Extra: imported, Globals: l.globals, Logger: l.logger})
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", u, err)
		}
		l.mu.Lock()
		l.modules[u] = mod
		l.mu.Unlock()
		return mod, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(expr.Module), nil
}
