package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/delaneyj/vyes/internal/config"
	"github.com/urfave/cli/v3"
)

const (
	configKey = "config"
	dirKey    = "dir"
	addrKey   = "addr"
	quietKey  = "quiet"
)

var configFlag = &cli.StringFlag{
	Name:    configKey,
	Aliases: []string{"c"},
	Usage:   "Config file (default " + config.DefaultFile + " when present)",
}

func main() {
	cmd := &cli.Command{
		Name:  "vyes",
		Usage: "Check, benchmark and serve vyes components",
		Commands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Walk every component under a directory and report its bindings",
				ArgsUsage: "[DIR]",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{Name: quietKey, Usage: "Only print components with diagnostics"},
				},
				Action: check,
			},
			{
				Name:   "bench",
				Usage:  "Measure write to drain propagation through computation chains",
				Flags:  []cli.Flag{configFlag},
				Action: bench,
			},
			{
				Name:      "serve",
				Usage:     "Serve component files and metrics",
				ArgsUsage: "[DIR]",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: addrKey, Usage: "Listen address (overrides the config)"},
				},
				Action: serve,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the config named by the flag and applies the DIR
// argument over it.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String(configKey))
	if err != nil {
		return nil, err
	}
	if dir := cmd.Args().First(); dir != "" {
		cfg.Dir = dir
	}
	return cfg, nil
}
