// Package main is a command line tool for checking back-end configurations and replaying
// recorded windows through the residual layer.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"go.viam.com/swarmvins/config"
	"go.viam.com/swarmvins/logging"
)

const (
	flagConfig   = "config"
	flagScenario = "scenario"
	flagDebug    = "debug"
)

func loadConfig(c *cli.Context) (config.Config, error) {
	if path := c.String(flagConfig); path != "" {
		return config.Read(path)
	}
	return config.Default(), nil
}

func newLogger(c *cli.Context, cfg config.Config) logging.Logger {
	if c.Bool(flagDebug) {
		return logging.NewDebugLogger("swarmvins")
	}
	logger := logging.NewLogger("swarmvins")
	if level, err := logging.LevelFromString(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func checkConfigAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s", out)
	return nil
}

func replayAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	sc, err := readScenario(c.String(flagScenario))
	if err != nil {
		return err
	}
	logger := newLogger(c, cfg)
	defer func() {
		_ = logger.Sync()
	}()
	return replay(c.Context, cfg, sc, logger, c.App.Writer)
}

func main() {
	app := &cli.App{
		Name:            "swarmvins",
		Usage:           "inspect the swarm visual-inertial back end",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "check-config",
				Usage:  "validate a configuration and print the effective options",
				Action: checkConfigAction,
			},
			{
				Name:  "replay",
				Usage: "build one solve pass from a recorded window and summarize it",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagScenario,
						Aliases:  []string{"s"},
						Required: true,
						Usage:    "recorded window `FILE`",
					},
				},
				Action: replayAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
