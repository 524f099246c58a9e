// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"grimm.is/sdnlink/internal/api"
	"grimm.is/sdnlink/internal/config"
	"grimm.is/sdnlink/internal/controller"
	"grimm.is/sdnlink/internal/logging"
	"grimm.is/sdnlink/internal/sim"
)

// ServeOptions configures RunServe.
type ServeOptions struct {
	ConfigFile string
	Listen     string
	Sim        bool
	Verbose    bool
}

var serveOpts ServeOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller and its admin API",
	Long: `Run the controller. With --sim the configured topology is simulated
in-process and connected to the controller, so the link commands can be
exercised without hardware.`,
	GroupID: "daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		serveOpts.ConfigFile = configFile
		return RunServe(ctx, serveOpts)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveOpts.Listen, "listen", "l", "", "API listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveOpts.Sim, "sim", false, "simulate the configured topology")
	serveCmd.Flags().BoolVarP(&serveOpts.Verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads path, or returns the built-in deployment when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

// RunServe runs the controller until ctx is cancelled.
func RunServe(ctx context.Context, opts ServeOptions) error {
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.API.Listen = opts.Listen
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if opts.Verbose {
		level = logging.LevelDebug
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.JSON = cfg.Logging.JSON
	logCfg.File = cfg.Logging.File
	logger := logging.New(logCfg)
	defer logger.Close()
	logging.SetDefault(logger)

	ctl, err := controller.New(cfg, controller.WithLogger(logger))
	if err != nil {
		return err
	}
	defer ctl.Close()

	srvOpts := api.ServerOptions{
		Links:    ctl.Links(),
		Switches: ctl.Switches(),
		Flows:    ctl.Flows(),
		MACs:     ctl.MACs(),
		Metrics:  ctl.Metrics().Handler(),
		Logger:   logger.WithComponent("api"),
	}

	var fabric *sim.Network
	if opts.Sim {
		fabric, err = sim.FromConfig(cfg.Topology, cfg.Links, ctl, sim.WithLogger(logger.WithComponent("sim")))
		if err != nil {
			return err
		}
		srvOpts.Sim = fabric
	}

	srv, err := api.NewServer(srvOpts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.API.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop(context.Background())
	})
	if fabric != nil {
		g.Go(func() error {
			if err := fabric.Connect(gctx); err != nil && gctx.Err() == nil {
				return err
			}
			logger.Info("simulated fabric connected",
				"switches", len(fabric.Switches()),
				"hosts", len(fabric.Hosts()),
			)
			return nil
		})
	}

	logger.Info("sdnlink serving", "listen", cfg.API.Listen, "sim", opts.Sim)
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("serve stopped")
		return err
	}
	logger.Info("sdnlink stopped")
	return nil
}
