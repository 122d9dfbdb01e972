package main

import (
	"fmt"
	"os"

	"github.com/fxnlabs/smm-acc/internal/config"
	"github.com/fxnlabs/smm-acc/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// env is filled in by the Before hook and shared by all commands.
type env struct {
	cfg *config.Config
	log *zap.Logger
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

func newApp(e *env) *cli.App {
	var configPath string
	var verbosity string

	return &cli.App{
		Name:  "smmacc",
		Usage: "Offload stacks of small matrix multiplications to an accelerator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to the YAML configuration file",
				EnvVars:     []string{"SMMACC_CONFIG"},
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "verbosity",
				Usage:       "Override the configured log level",
				Destination: &verbosity,
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Override the configured device backend (auto, host, opencl)",
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			// init writes the file the other commands read
			if c.Args().First() == "init" {
				e.cfg = config.Default()
			} else if e.cfg, err = loadConfig(configPath); err != nil {
				return err
			}
			if verbosity != "" {
				e.cfg.Logger.Verbosity = verbosity
			}
			if backend := c.String("backend"); backend != "" {
				e.cfg.Device.Backend = backend
				if err := e.cfg.Validate(); err != nil {
					return err
				}
			}
			zapLogger, err := logger.New(e.cfg.Logger.Verbosity)
			if err != nil {
				return err
			}
			e.log = zapLogger.Named("cli")
			return nil
		},
		After: func(c *cli.Context) error {
			if e.log != nil {
				_ = e.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(),
			infoCommand(e),
			blocksizesCommand(),
			benchCommand(e),
			serveCommand(e),
		},
	}
}

func main() {
	e := &env{}
	if err := newApp(e).Run(os.Args); err != nil {
		if e.log != nil {
			e.log.Fatal("failed to run app", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}
