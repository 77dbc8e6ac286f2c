package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing/fstest"
	"time"

	"github.com/delaneyj/vyes"
	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/internal/config"
	"github.com/delaneyj/vyes/reactive"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func bench(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tbl := table.NewWriter()
	tbl.SetTitle("vyes propagation")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})

	for _, w := range cfg.Bench.Widths {
		for _, h := range cfg.Bench.Heights {
			calc := benchPropagate(w, h, cfg.Bench.Iterations)
			tbl.AppendRow(row(fmt.Sprintf("propagate: %d * %d", w, h), calc))
		}
	}
	for _, n := range cfg.Bench.Widths {
		calc, err := benchRender(ctx, n, cfg.Bench)
		if err != nil {
			return err
		}
		tbl.AppendRow(row(fmt.Sprintf("v-for: %d items", n), calc))
	}
	tbl.Render()
	return nil
}

func row(name string, calc *tachymeter.Metrics) table.Row {
	return table.Row{name, calc.Time.Avg, calc.Time.Min, calc.Time.P75, calc.Time.P99, calc.Time.Max}
}

// settle drains until no computation is pending.
func settle(sys *reactive.System) {
	for sys.Drain() > 0 {
	}
}

// benchPropagate builds w chains of h computations, each copying its
// predecessor plus one, and times a source write until the leaves settle.
func benchPropagate(w, h, iters int) *tachymeter.Metrics {
	sys := reactive.NewSystem(reactive.WithLogger(quietLogger))
	src := sys.NewObject(map[string]any{"v": 0.0}, nil)
	for i := 0; i < w; i++ {
		prev := src
		for j := 0; j < h; j++ {
			next := sys.NewObject(map[string]any{"v": 0.0}, nil)
			from := prev
			sys.Watch(func() {
				v, _ := from.Get("v").(float64)
				next.Set("v", v+1)
			})
			prev = next
		}
		leaf := prev
		sys.Watch(func() { leaf.Get("v") })
	}

	tach := tachymeter.New(&tachymeter.Config{Size: iters})
	for i := 0; i < iters; i++ {
		start := time.Now()
		src.Set("v", float64(i+1))
		settle(sys)
		tach.AddTime(time.Since(start))
	}
	return tach.Calc()
}

// benchRender mounts a v-for list and times resizing it between n and
// n/2 items.
func benchRender(ctx context.Context, n int, cfg config.Bench) (*tachymeter.Metrics, error) {
	files := fstest.MapFS{
		"root.html": &fstest.MapFile{Data: []byte(`<html><body root>
<ul><li v-for="i in count" :class="i % 2 ? 'odd' : 'even'">{{ i }}</li></ul>
<script setup>count = 0</script>
</body></html>`)},
	}
	doc := dom.NewDocument()
	host := doc.CreateElement("div")
	doc.Body().AppendChild(host)
	app := vyes.New(doc, vyes.WithLogger(quietLogger), vyes.WithSource(fetch.DirSource{FS: files}))
	defer app.Close()
	if err := app.Mount(ctx, host, "/"); err != nil {
		return nil, fmt.Errorf("mount bench page: %w", err)
	}
	store := app.Store(host)

	tach := tachymeter.New(&tachymeter.Config{Size: cfg.Iterations})
	for i := 0; i < cfg.Iterations; i++ {
		size := n
		if i%2 == 1 {
			size = n / 2
		}
		start := time.Now()
		store.Set("count", float64(size))
		settle(app.System())
		tach.AddTime(time.Since(start))
	}
	return tach.Calc(), nil
}
