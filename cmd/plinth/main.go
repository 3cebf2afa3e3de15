// plinth - 3D scene configurator
// Place GLB modules on a shared ground plane, drag them around without
// overlaps, and export the layout. Runs in the terminal, headless, or as an
// HTTP bridge.
//
// Commands:
//
//	view    - Interactive terminal configurator
//	export  - Headless layout and PNG export
//	serve   - HTTP/WebSocket bridge keyed by mount id
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taigrr/plinth/internal/config"
	"github.com/taigrr/plinth/internal/logger"
	"github.com/taigrr/plinth/pkg/fetch"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// env is the state every subcommand starts from: the loaded config, the
// file it came from, and the logger.
type env struct {
	cfg  config.Config
	path string
	log  *zap.Logger

	configFlag string
	levelFlag  string
	fileFlag   string
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:   "plinth",
		Short: "3D scene configurator",
		Long: "plinth places GLB modules on a shared ground plane with contact shadows,\n" +
			"keeps them from overlapping while you drag them, and exports the layout.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&e.configFlag, "config", "c", "", "config file (default ./plinth.yaml, then the user config dir)")
	root.PersistentFlags().StringVar(&e.levelFlag, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&e.fileFlag, "log-file", "", "also log to this file, rotated")

	root.AddCommand(newViewCmd(e), newExportCmd(e), newServeCmd(e))
	return root
}

// load reads the config and applies the persistent flags. console selects
// whether the logger may write to stderr.
func (e *env) load(console bool) error {
	cfg, path, err := config.Load(e.configFlag)
	if err != nil {
		return err
	}
	if e.levelFlag != "" {
		cfg.Logging.Level = e.levelFlag
	}
	if e.fileFlag != "" {
		cfg.Logging.File = e.fileFlag
	}
	cfg.Logging.Console = cfg.Logging.Console && console
	e.cfg, e.path = cfg, path
	e.log = logger.New(cfg.Logging)
	if path != "" {
		e.log.Debug("config loaded", zap.String("path", path))
	}
	return nil
}

func (e *env) fetcher() (*fetch.Client, error) {
	opts, err := e.cfg.FetchOptions()
	if err != nil {
		return nil, err
	}
	return fetch.New(append(opts, fetch.WithLogger(e.log))...), nil
}
