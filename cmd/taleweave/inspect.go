package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emberune/taleweave/backend"
	"github.com/emberune/taleweave/generator"
	"github.com/emberune/taleweave/inspect"
	"github.com/emberune/taleweave/source"
	"github.com/emberune/taleweave/store"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Serve the context inspection API over live sources",
	Long: `Serve the context inspection API over live sources.

GET /api/v1/context assembles a snapshot for the given entity IDs and
returns its validation result, prompt and token breakdown. Nothing the
server does affects generation; it is a read-only debug surface.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().String("addr", ":8233", "listen address")
	_ = viper.BindPFlag("addr", inspectCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	profile, err := loadProfile()
	if err != nil {
		return err
	}
	logger := newLogger()

	localStore, err := store.Open(profile.DSN)
	if err != nil {
		return err
	}
	defer localStore.Close()

	client := backend.NewClient(&backend.Config{
		BaseURL: profile.BackendURL,
		APIKey:  profile.BackendAPIKey,
	}, logger)

	var frameGenerator source.FrameGenerator
	if profile.IsAIEnabled() {
		frameGenerator = generator.NewService(&generator.Config{
			BaseURL: profile.AIBaseURL,
			APIKey:  profile.AIAPIKey,
			Model:   profile.AIModel,
			Timeout: profile.AIGenerateTimeout,
		}, logger)
	}

	registry := source.NewRegistry(source.Dependencies{
		Backend:   client,
		Settings:  localStore,
		Triggers:  localStore,
		Generator: frameGenerator,
		Logger:    logger,
	})
	defer registry.Dispose()
	if err := registry.Init(); err != nil {
		return err
	}

	server := inspect.NewServer(registry, logger)

	addr := viper.GetString("addr")
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(addr) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		fmt.Fprintf(os.Stderr, "received %s, shutting down\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
