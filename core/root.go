package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/sharecore/pkg/capture"
	"example.com/sharecore/pkg/command"
	"example.com/sharecore/pkg/config"
	"example.com/sharecore/pkg/dispatcher"
	"example.com/sharecore/pkg/ipc"
	"example.com/sharecore/pkg/permissions"
	"example.com/sharecore/pkg/room"
	"example.com/sharecore/pkg/room/vp8"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "sharecore [socket-path]",
		Short: "Headless screen-share and annotation core",
		Long: "Runs the screen-share core for a host UI. The UI connects to the unix socket and " +
			"drives capture, room membership and annotations with newline-delimited JSON.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.SocketPath = args[0]
			}
			return run(cmd.Context(), cfg)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (.toml, .yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(newSendCmd(flags))
	rootCmd.AddCommand(newPermissionsCmd())

	return rootCmd
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// socketPath resolves the endpoint: argument or config, then a per-process
// default under the temp dir
func socketPath(cfg *config.Config) string {
	if cfg.SocketPath != "" {
		return cfg.SocketPath
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("sharecore-%d.sock", os.Getpid()))
}

func run(ctx context.Context, cfg *config.Config) error {
	path := socketPath(cfg)
	slog.Info("core: starting", "socket", path, "pid", os.Getpid())

	queue := dispatcher.NewQueue()
	pipeline := capture.NewPipeline(capture.ScreenshotBackend{}, cfg.CaptureOptions(), dispatcher.NewCaptureListener(queue))

	server := ipc.NewServer(path, queue)
	if err := server.Listen(); err != nil {
		slog.Error("core: socket init failed", "code", command.CodeSocketInitFailed, "error", err)
		return fmt.Errorf("%s: %w", command.CodeSocketInitFailed, err)
	}

	roomOpts := cfg.RoomOptions()
	roomOpts.Encoder = vp8.New

	opts := dispatcher.DefaultOptions()
	opts.ConnectTimeout = cfg.ConnectTimeout()

	d := dispatcher.New(dispatcher.Deps{
		Queue:       queue,
		IPC:         server,
		Capture:     pipeline,
		Transport:   room.NewDialer(roomOpts),
		Permissions: permissions.NewChecker(),
	}, opts)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx)
	})
	g.Go(func() error {
		d.Run()
		return server.Shutdown()
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			slog.Info("core: terminating")
			d.Submit(command.Terminate{})
		case <-d.Done():
		}
		return nil
	})

	err := g.Wait()
	slog.Info("core: exited")
	return err
}
