package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/vyes"
	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/fetch"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

type report struct {
	File         string
	Size         int64
	Directives   int
	Computations int
	Diagnostics  []vyes.Diagnostic
	Err          error
}

// kinds lists the distinct diagnostic kinds in report order.
func (r report) kinds() []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	var out []string
	for _, d := range r.Diagnostics {
		if seen.Add(d.Kind) {
			out = append(out, d.Kind)
		}
	}
	return out
}

func (r report) ok() bool { return r.Err == nil && len(r.Diagnostics) == 0 }

func check(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)
	reports, err := checkFS(ctx, os.DirFS(cfg.Dir), logger)
	if err != nil {
		return err
	}
	failed := renderReports(os.Stdout, reports, cmd.Bool(quietKey))
	if failed > 0 {
		return fmt.Errorf("%d of %d components have diagnostics", failed, len(reports))
	}
	return nil
}

// checkFS mounts every .html file of fsys on its own detached document and
// collects what the walk bound and refused.
func checkFS(ctx context.Context, fsys fs.FS, logger *slog.Logger) ([]report, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".html") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	sort.Strings(files)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	reports := make([]report, 0, len(files))
	for _, f := range files {
		r := report{File: f}
		if info, err := fs.Stat(fsys, f); err == nil {
			r.Size = info.Size()
		}
		doc := dom.NewDocument()
		host := doc.CreateElement("div")
		doc.Body().AppendChild(host)
		app := vyes.New(doc,
			vyes.WithLogger(quiet),
			vyes.WithSource(fetch.DirSource{FS: fsys}),
			vyes.WithDiagnostics(func(d vyes.Diagnostic) { r.Diagnostics = append(r.Diagnostics, d) }),
		)
		r.Err = app.Mount(ctx, host, "/"+path.Clean(f))
		app.System().Drain()
		r.Directives = app.Directives()
		r.Computations = app.Computations()
		app.Dispose(host)
		app.Close()
		logger.Debug("checked", "file", f, "directives", r.Directives, "diagnostics", len(r.Diagnostics))
		reports = append(reports, r)
	}
	return reports, nil
}

// renderReports writes the report table and returns how many components
// failed.
func renderReports(w io.Writer, reports []report, quiet bool) int {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"component", "size", "directives", "computations", "diagnostics", "kinds"})
	failed := 0
	for _, r := range reports {
		if !r.ok() {
			failed++
		} else if quiet {
			continue
		}
		kinds := strings.Join(r.kinds(), ",")
		if r.Err != nil {
			kinds = "error: " + r.Err.Error()
		}
		table.Append([]string{
			r.File,
			humanize.Bytes(uint64(r.Size)),
			humanize.Comma(int64(r.Directives)),
			humanize.Comma(int64(r.Computations)),
			fmt.Sprint(len(r.Diagnostics)),
			kinds,
		})
	}
	table.Render()
	return failed
}
