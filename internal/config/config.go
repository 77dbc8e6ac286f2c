// Package config reads the optional vyes.yaml of the developer tools.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no file is named.
const DefaultFile = "vyes.yaml"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	// Dir holds the component files.
	Dir string `yaml:"dir"`
	// Root is sent as the Vyes-Root header and prefixes absolute component
	// URLs.
	Root     string            `yaml:"root"`
	Addr     string            `yaml:"addr"`
	LogLevel string            `yaml:"log_level"`
	Headers  map[string]string `yaml:"headers"`
	Metrics  Metrics           `yaml:"metrics"`
	Bench    Bench             `yaml:"bench"`
}

type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Bench shapes the propagation graphs of vyes bench: Widths independent
// chains, each Heights computations deep.
type Bench struct {
	Widths     []int `yaml:"widths"`
	Heights    []int `yaml:"heights"`
	Iterations int   `yaml:"iterations"`
}

func Default() *Config {
	return &Config{
		Dir:      ".",
		Addr:     ":8080",
		LogLevel: "info",
		Metrics:  Metrics{Enabled: true, Namespace: "vyes"},
		Bench: Bench{
			Widths:     []int{1, 10, 100},
			Heights:    []int{1, 10, 100},
			Iterations: 100,
		},
	}
}

// Load reads path over the defaults. A missing DefaultFile is not an
// error; a missing file named explicitly is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML document over the defaults. Unknown keys are
// rejected.
func Parse(b []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Root != "" && !strings.HasPrefix(c.Root, "/") {
		return fmt.Errorf("%w: root %q must start with /", ErrInvalid, c.Root)
	}
	if c.Bench.Iterations <= 0 {
		return fmt.Errorf("%w: bench.iterations must be positive", ErrInvalid)
	}
	for _, n := range append(append([]int{}, c.Bench.Widths...), c.Bench.Heights...) {
		if n <= 0 {
			return fmt.Errorf("%w: bench sizes must be positive, got %d", ErrInvalid, n)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	return l, nil
}

// Header is attached to every served component file.
func (c *Config) Header() http.Header {
	h := http.Header{}
	for k, v := range c.Headers {
		h.Set(k, v)
	}
	if c.Root != "" {
		h.Set("Vyes-Root", c.Root)
	}
	return h
}

// Logger builds a text logger at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	l, err := c.Level()
	if err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
