package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"candidate-evaluator/ai"
	"candidate-evaluator/infrastructure"
	"candidate-evaluator/retry"
)

const app = "candidate-evaluator"

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "Asynchronous CV and project report evaluation service",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional config file, environment variables take precedence")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

// bootstrap builds the logger and loads the configuration shared by the
// serve and worker commands.
func bootstrap() (*infrastructure.Config, *zap.Logger, error) {
	logger, err := infrastructure.NewLogger(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, nil, fmt.Errorf("creating a logger: %w", err)
	}

	cfg, err := infrastructure.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, logger, nil
}

func newAIClient(ctx context.Context, cfg *infrastructure.Config, logger *zap.Logger) (ai.Client, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.AI.Provider)) {
	case "", "gemini":
		return ai.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
	case "openai":
		return ai.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, logger)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.AI.Provider)
	}
}

func retryPolicy(cfg *infrastructure.Config) retry.Policy {
	return retry.Policy{
		MaxRetries: cfg.AI.MaxRetries,
		BaseDelay:  cfg.AI.RetryBaseDelay,
	}
}
