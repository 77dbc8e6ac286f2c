package expr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/delaneyj/vyes/reactive"
)

// Timers backs setTimeout and setInterval with a scheduler clock, so
// template timers fire on the same goroutine as the drain.
type Timers struct {
	clock  reactive.Clock
	logger *slog.Logger

	mu    sync.Mutex
	next  int
	stops map[int]func() bool
}

func NewTimers(clock reactive.Clock, logger *slog.Logger) *Timers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timers{clock: clock, logger: logger, stops: map[int]func() bool{}}
}

func delayOf(v any) time.Duration {
	ms := ToNumber(v)
	if math.IsNaN(ms) || ms < 0 {
		ms = 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (t *Timers) fire(fn any, args []any) {
	if _, err := Call(fn, args...); err != nil {
		t.logger.Error("timer callback failed", "err", err)
	}
}

// SetTimeout runs fn once after d and returns its id.
func (t *Timers) SetTimeout(fn any, d time.Duration, args ...any) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next
	t.stops[id] = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		_, ok := t.stops[id]
		delete(t.stops, id)
		t.mu.Unlock()
		if ok {
			t.fire(fn, args)
		}
	})
	return id
}

// SetInterval runs fn every d until cleared.
func (t *Timers) SetInterval(fn any, d time.Duration, args ...any) int {
	if d <= 0 {
		d = time.Millisecond
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next
	var tick func()
	tick = func() {
		t.mu.Lock()
		_, ok := t.stops[id]
		if ok {
			t.stops[id] = t.clock.AfterFunc(d, tick)
		}
		t.mu.Unlock()
		if ok {
			t.fire(fn, args)
		}
	}
	t.stops[id] = t.clock.AfterFunc(d, tick)
	return id
}

// Clear cancels a timeout or interval. Unknown ids are ignored.
func (t *Timers) Clear(id int) {
	t.mu.Lock()
	stop, ok := t.stops[id]
	delete(t.stops, id)
	t.mu.Unlock()
	if ok {
		stop()
	}
}

// Active reports how many timers are armed.
func (t *Timers) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stops)
}

func (t *Timers) globals() map[string]any {
	cancel := func(args ...any) any {
		t.Clear(int(ToNumber(arg(args, 0))))
		return nil
	}
	return map[string]any{
		"setTimeout": func(args ...any) any {
			return t.SetTimeout(arg(args, 0), delayOf(arg(args, 1)), args[min(len(args), 2):]...)
		},
		"setInterval": func(args ...any) any {
			return t.SetInterval(arg(args, 0), delayOf(arg(args, 1)), args[min(len(args), 2):]...)
		},
		"clearTimeout":  cancel,
		"clearInterval": cancel,
	}
}

// Response is what fetch resolves to. The body is read eagerly.
type Response struct {
	URL        string
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
}

func (r *Response) GetMember(name string) (any, bool) {
	switch name {
	case "ok":
		return r.Status >= 200 && r.Status < 300, true
	case "status":
		return r.Status, true
	case "statusText":
		return r.StatusText, true
	case "url":
		return r.URL, true
	case "headers":
		out := map[string]any{}
		for k := range r.Header {
			out[strings.ToLower(k)] = r.Header.Get(k)
		}
		return out, true
	case "text":
		return func(...any) any { return string(r.Body) }, true
	case "json":
		return func(...any) any {
			var v any
			if err := json.Unmarshal(r.Body, &v); err != nil {
				panic(&ThrownError{Value: errorValue(fmt.Errorf("invalid json from %s: %w", r.URL, err))})
			}
			return v
		}, true
	}
	return nil, false
}

func (r *Response) SetMember(string, any) bool { return false }

// Fetcher implements the fetch global over an http.Client.
type Fetcher struct {
	Client *http.Client
	// Base resolves relative URLs.
	Base string
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// Fetch performs one request; opts follows the fetch init object (method,
// headers, body).
func (f *Fetcher) Fetch(ctx context.Context, target string, opts any) (*Response, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() && f.Base != "" {
		base, err := url.Parse(f.Base)
		if err != nil {
			return nil, err
		}
		u = base.ResolveReference(u)
	}
	in := hostInterp()
	method := http.MethodGet
	var body io.Reader
	headers := map[string]string{}
	if opts != nil {
		if m := in.member(opts, "method"); m != nil {
			method = strings.ToUpper(ToString(m))
		}
		if b := in.member(opts, "body"); b != nil {
			s, ok := b.(string)
			if !ok {
				s = Stringify(b)
			}
			body = bytes.NewBufferString(s)
		}
		if h := in.member(opts, "headers"); h != nil {
			keys := keysOf(h)
			sort.Strings(keys)
			for _, k := range keys {
				headers[k] = ToString(in.member(h, k))
			}
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := f.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}
	return &Response{
		URL:        u.String(),
		Status:     res.StatusCode,
		StatusText: http.StatusText(res.StatusCode),
		Header:     res.Header,
		Body:       b,
	}, nil
}

// Host is the set of host globals bound to one runtime.
type Host struct {
	Timers  *Timers
	Fetcher *Fetcher
	Logger  *slog.Logger
}

// Globals returns the scope globals for h: console bound to the logger,
// the timer functions and fetch.
func (h Host) Globals() map[string]any {
	out := map[string]any{"console": consoleFor(h.Logger)}
	if h.Timers != nil {
		for k, v := range h.Timers.globals() {
			out[k] = v
		}
	}
	if h.Fetcher != nil {
		out["fetch"] = ContextFunc(func(ctx context.Context, args ...any) any {
			res, err := h.Fetcher.Fetch(ctx, ToString(arg(args, 0)), arg(args, 1))
			if err != nil {
				panic(&ThrownError{Value: errorValue(err)})
			}
			return res
		})
	}
	return out
}
