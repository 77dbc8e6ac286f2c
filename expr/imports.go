package expr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"sync"
)

var ErrModuleNotFound = errors.New("module not found")

// ModuleLoader loads a module by resolved URL.
type ModuleLoader interface {
	LoadModule(ctx context.Context, url string) (Module, error)
}

// Modules is an in-memory ModuleLoader.
type Modules struct {
	mu   sync.RWMutex
	mods map[string]Module
}

func NewModules() *Modules {
	return &Modules{mods: map[string]Module{}}
}

// Register makes exports loadable under url.
func (m *Modules) Register(url string, exports Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mods[url] = exports
}

func (m *Modules) LoadModule(_ context.Context, url string) (Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.mods[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, url)
	}
	return mod, nil
}

// ImportOptions configures PreprocessImports.
type ImportOptions struct {
	// Base is the URL of the file the code came from.
	Base string
	// Root prefixes absolute paths.
	Root string
	// Origin is prepended to URLs without a scheme.
	Origin string
	Loader ModuleLoader
	// Bind receives each imported name.
	Bind   func(name string, v any)
	Logger *slog.Logger
}

var (
	staticImportRe  = regexp.MustCompile(`(?m)^[\s/]*import\s+([\w{},\s]+)\s+from\s+['"]([^'"]+)['"][;\s]*$`)
	dynamicImportRe = regexp.MustCompile(`await import\(['"]([^'"]+)['"]\)`)
	singleNameRe    = regexp.MustCompile(`^\w+$`)
	namedListRe     = regexp.MustCompile(`^\{[\w\s,]+\}$`)
)

func (o ImportOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func hasScheme(u string) bool {
	return strings.HasPrefix(u, "http:") || strings.HasPrefix(u, "https:")
}

// ResolvePath resolves rel against the directory of base.
func ResolvePath(rel, base string) string {
	if strings.HasPrefix(rel, "/") {
		return rel
	}
	dir := base
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		dir = base[:i]
	} else {
		dir = ""
	}
	return path.Clean("/" + dir + "/" + rel)
}

func (o ImportOptions) moduleURL(u string) string {
	switch {
	case strings.HasPrefix(u, "@"):
		u = u[1:]
	case hasScheme(u):
	case strings.HasPrefix(u, "/") && o.Root != "":
		u = o.Root + u
	default:
		u = ResolvePath(u, o.Base)
	}
	if !strings.HasSuffix(u, ".js") {
		u += ".js"
	}
	if !hasScheme(u) {
		u = o.Origin + u
	}
	return u
}

func (o ImportOptions) dynamicURL(u string) string {
	if hasScheme(u) {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return o.Origin + u
}

// PreprocessImports strips static import lines from code, loading each
// module and binding its names, and rewrites dynamic imports to calls of
// $import with absolute URLs. A failed import is logged and skipped.
func PreprocessImports(ctx context.Context, code string, o ImportOptions) (string, error) {
	out := dynamicImportRe.ReplaceAllStringFunc(code, func(m string) string {
		u := dynamicImportRe.FindStringSubmatch(m)[1]
		return fmt.Sprintf("await $import('%s')", o.dynamicURL(u))
	})
	for _, m := range staticImportRe.FindAllStringSubmatch(out, -1) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out = strings.Replace(out, m[0], "", 1)
		if strings.HasPrefix(strings.TrimSpace(m[0]), "//") {
			continue
		}
		if err := o.load(ctx, m[1], m[2]); err != nil {
			o.logger().Error("import failed", "import", strings.TrimSpace(m[0]), "err", err)
		}
	}
	return strings.TrimSpace(out), nil
}

func (o ImportOptions) load(ctx context.Context, names, u string) error {
	names = strings.TrimSpace(names)
	var list []string
	switch {
	case singleNameRe.MatchString(names):
	case namedListRe.MatchString(names):
		for _, n := range strings.Split(names[1:len(names)-1], ",") {
			if n = strings.TrimSpace(n); n != "" {
				list = append(list, n)
			}
		}
	default:
		return fmt.Errorf("unsupported import list %q", names)
	}
	if o.Loader == nil {
		return errors.New("no module loader")
	}
	mod, err := o.Loader.LoadModule(ctx, o.moduleURL(u))
	if err != nil {
		return err
	}
	if o.Bind == nil {
		return nil
	}
	if list == nil {
		if def, ok := mod["default"]; ok {
			o.Bind(names, def)
		} else {
			o.Bind(names, map[string]any(mod))
		}
		return nil
	}
	def, _ := mod["default"].(map[string]any)
	for _, n := range list {
		if v, ok := mod[n]; ok {
			o.Bind(n, v)
		} else if v, ok := def[n]; ok {
			o.Bind(n, v)
		}
	}
	return nil
}

// ImportFunc is the $import global that dynamic imports are rewritten to.
func (o ImportOptions) ImportFunc() ContextFunc {
	return func(ctx context.Context, args ...any) any {
		if o.Loader == nil {
			panic(&ThrownError{Value: errorValue(errors.New("no module loader"))})
		}
		mod, err := o.Loader.LoadModule(ctx, ToString(arg(args, 0)))
		if err != nil {
			panic(&ThrownError{Value: errorValue(err)})
		}
		return map[string]any(mod)
	}
}
