package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/editclick/internal/config"
	"github.com/forPelevin/editclick/internal/pipeline"
	"github.com/forPelevin/editclick/internal/ports/adapters/stableaudio"
)

func run(cmd *cobra.Command, input string) error {
	outDir, _ := cmd.Flags().GetString("out")
	cacheDir, _ := cmd.Flags().GetString("cache")

	settings, err := loadSettings(cmd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := newLogger(cmd.ErrOrStderr())

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Hour)
	defer cancel()

	cfg := pipeline.Config{
		InputMP4: absIn,
		OutDir:   outDir,
		CacheDir: cacheDir,
		Settings: settings,
		Log:      &log,

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   os.Getenv("OPENAI_STT_MODEL"),

		StableAudioAPIKey:       os.Getenv("STABLE_AUDIO_API_KEY"),
		StableAudioBaseURL:      getenvDefault("STABLE_AUDIO_BASE_URL", "https://api.stability.ai"),
		StableAudioAllowedHosts: stableaudio.ParseAllowedHosts(os.Getenv("STABLE_AUDIO_ALLOWED_HOSTS")),
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return pipeline.Run(ctx, cfg)
}

// loadSettings reads the settings file and applies flag overrides on top.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	settings, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	settings = settings.Copy()

	flags := cmd.Flags()
	if flags.Changed("policy") {
		settings.Cut.Policy, _ = flags.GetString("policy")
	}
	if flags.Changed("straddle") {
		settings.Cut.Straddle, _ = flags.GetString("straddle")
	}
	if flags.Changed("drop") {
		settings.Cut.DropShots, _ = flags.GetIntSlice("drop")
		if !flags.Changed("policy") && settings.Cut.Policy == "keep-all" {
			settings.Cut.Policy = "drop-shots"
		}
	}
	if f := flags.Lookup("no-subtitles"); f != nil && f.Changed {
		off, _ := flags.GetBool("no-subtitles")
		settings.Subtitles.Enabled = !off
	}
	if f := flags.Lookup("no-bgm"); f != nil && f.Changed {
		off, _ := flags.GetBool("no-bgm")
		settings.BGM.Enabled = !off
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func dumpConfig(cmd *cobra.Command) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	b, err := config.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
