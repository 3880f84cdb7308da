package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soocke/prompt-bot-go/app"
	"github.com/soocke/prompt-bot-go/config"
)

const defaultConfigPath = "config.yaml"

var (
	configPath string
	envFile    string
	debugFlag  bool

	rootCmd = &cobra.Command{
		Use:           "prompt-bot",
		Short:         "Press keys when their on-screen prompts appear",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start the enabled engines until interrupted",
		RunE:  runEngines,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (JSON or YAML); default $"+config.EnvConfigPath+" or "+defaultConfigPath)
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	pf.BoolVar(&debugFlag, "debug", false, "debug logging and runtime stats")
	rootCmd.AddCommand(runCmd)
}

// loadConfig resolves the configuration: defaults, then the file, then
// PROMPTBOT_* variables, then flags.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	path := configPath
	if path == "" {
		path = config.ConfigPathFromEnv(defaultConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if debugFlag {
		cfg.Debug = true
	}
	return cfg, nil
}

func runEngines(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := NewLogger(levelFor(cfg.Debug))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := app.BuildContainer(cfg, logger, app.Deps{})
	logger.Info("starting",
		"spam", cfg.Spam.Enabled, "spam_templates", c.SpamLibrary.Len(),
		"hold", cfg.Hold.Enabled, "hold_templates", c.HoldLibrary.Len(),
		"input", c.Actuator.Method(), "capture", cfg.CaptureMode)
	return app.New(c).Run(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
