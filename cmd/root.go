package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docsentry/internal/config"
	"docsentry/internal/logger"
	"docsentry/internal/metrics"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docsentry",
	Short: "docsentry - local document question answering and ID authenticity checks",
	Long: `docsentry learns documents into a local vector index and answers questions about them
with an Ollama model. It also keeps a second index of authentic identity documents
(PAN, AADHAAR) and scores new documents against it.

Features:
- Learn text, PDF and scanned image documents (pdftotext / tesseract)
- Exact nearest-neighbour retrieval over a persistent flat index
- Answers grounded in the retrieved chunks via Ollama
- Authenticity verdicts from hand-crafted document features
- Batch loading from a YAML manifest and an interactive chat screen`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = c
		logger.Init(cfg.Log.Level, cfg.Log.Format)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil || cfg.Metrics.Textfile == "" {
			return nil
		}
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return fmt.Errorf("failed to write metrics textfile: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.docsentry.yaml)")
	flags.String("data-dir", "", "directory holding the indices (default is $HOME/.docsentry)")
	flags.String("ollama-url", "http://localhost:11434", "Ollama server URL")
	flags.String("embed-model", "qwen:1.8b", "Ollama model used for embeddings")
	flags.String("text-model", "qwen:1.8b", "Ollama model used to generate answers")
	flags.Duration("timeout", 0, "per-call timeout for Ollama requests (default 2m)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("metrics-textfile", "", "write Prometheus metrics to this file after each command")

	bind := map[string]string{
		"data_dir":           "data-dir",
		"ollama.url":         "ollama-url",
		"ollama.embed_model": "embed-model",
		"ollama.text_model":  "text-model",
		"ollama.timeout":     "timeout",
		"log.level":          "log-level",
		"log.format":         "log-format",
		"metrics.textfile":   "metrics-textfile",
	}
	for key, flag := range bind {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// initConfig reads in .env, the config file and ENV variables if set.
func initConfig() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".docsentry")
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		cobra.CheckErr(err)
	}
}
