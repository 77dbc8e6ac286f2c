package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/delaneyj/vyes/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	c, err := config.Parse([]byte(`
dir: site
root: /app
log_level: debug
headers:
  Vyes-Theme: dark
bench:
  widths: [2]
  iterations: 5
`))
	require.NoError(t, err)
	assert.Equal(t, "site", c.Dir)
	assert.Equal(t, ":8080", c.Addr, "unset keys keep defaults")
	assert.Equal(t, []int{2}, c.Bench.Widths)
	assert.Equal(t, []int{1, 10, 100}, c.Bench.Heights)
	assert.Equal(t, 5, c.Bench.Iterations)

	l, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	h := c.Header()
	assert.Equal(t, "/app", h.Get("Vyes-Root"))
	assert.Equal(t, "dark", h.Get("Vyes-Theme"))
}

func TestParseEmpty(t *testing.T) {
	c, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), c)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "colour: red",
		"relative root": "root: app",
		"zero iters":    "bench: {iterations: 0}",
		"bad size":      "bench: {widths: [0]}",
		"bad level":     "log_level: loud",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(doc))
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("addr: :9000\n"), 0o644))
		c, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9000", c.Addr)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("missing default file", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(t.TempDir()))
		t.Cleanup(func() { _ = os.Chdir(wd) })
		c, err := config.Load("")
		require.NoError(t, err)
		assert.Equal(t, config.Default(), c)
	})
}
