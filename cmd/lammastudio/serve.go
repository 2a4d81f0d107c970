package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/RATDEO/lammastudio-sub000/internal/command"
	"github.com/RATDEO/lammastudio-sub000/internal/config"
	"github.com/RATDEO/lammastudio-sub000/internal/event"
	"github.com/RATDEO/lammastudio-sub000/internal/httpapi"
	"github.com/RATDEO/lammastudio-sub000/internal/launch"
	"github.com/RATDEO/lammastudio-sub000/internal/process"
	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

// shutdownGrace bounds how long serve waits for in-flight requests (and
// the gpu sampler goroutine) to wind down after a signal is received.
const shutdownGrace = 10 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP launch controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	log := logrus.StandardLogger()

	watcher, err := config.WatchFile(configPath, log)
	if err != nil {
		return err
	}
	cfg := watcher.Get()

	store, err := recipe.Open(cfg.SqlitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := command.Options{
		RuntimeBinDir:   cfg.RuntimeBin,
		LlamaServerPath: cfg.LlamaServerPath,
		SDCliPath:       cfg.SDCliPath,
	}
	if home, err := os.UserHomeDir(); err == nil {
		opts.HomeDir = home
	}

	procs := process.NewManager(cfg.LogDir, opts, log)
	bus := event.New()
	gpuCache := event.NewGPUCache()
	state := launch.NewState()
	coordinator := launch.NewCoordinator(store, procs, bus, state, log)
	coordinator.BearerToken = cfg.BearerToken
	if cfg.HealthProbeTimeoutSeconds > 0 {
		coordinator.HealthProbeTimeout = time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	}
	if cfg.LaunchTimeoutSeconds > 0 {
		coordinator.WaitTimeout = time.Duration(cfg.LaunchTimeoutSeconds) * time.Second
	}

	server := httpapi.NewServer(store, coordinator, bus, gpuCache, procs, state, log, cfg.BearerToken)

	samplerCtx, stopSampler := context.WithCancel(context.Background())
	defer stopSampler()
	go event.RunGPUSampler(samplerCtx, bus, gpuCache, log)

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: server.Handler()}

	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer close(done)
		sig := <-sigChan
		log.WithField("signal", sig).Info("shutting down")
		stopSampler()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = httpSrv.Shutdown(ctx)
	}()

	log.WithField("addr", cfg.ListenAddr).Info("lammastudio listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
