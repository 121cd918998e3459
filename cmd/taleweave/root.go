package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emberune/taleweave/internal/profile"
)

var rootCmd = &cobra.Command{
	Use:   "taleweave",
	Short: "Roleplay context assembly engine",
	Long: `taleweave assembles chat, character, world and lore state into
token-budgeted LLM prompts.

The serialize command renders a prompt from a fixture file; the inspect
command serves a debug API over live sources.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `mode: "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default ./taleweave.yaml)")

	_ = viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data"))

	viper.SetEnvPrefix("taleweave")
	viper.AutomaticEnv()

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("taleweave")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	// A missing config file is fine; env and flags cover everything.
	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("loaded config file", "file", viper.ConfigFileUsed())
	}
}

// loadProfile builds the runtime profile from flags, config and env.
func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode: viper.GetString("mode"),
		Data: viper.GetString("data"),
		Addr: viper.GetString("addr"),
		Port: viper.GetInt("port"),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetString("mode") != "prod" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
