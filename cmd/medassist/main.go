// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the medassist CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/medassist/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// creds holds the credentials loaded from .secrets/ at startup.
var creds = secrets.FromValues(nil)

var rootCmd = &cobra.Command{
	Use:   "medassist",
	Short: "Medical assistant: provider-routed chat and PubMed literature search",
	Long: `medassist answers medical questions through a chain of AI providers with
retry and fallback, and searches PubMed for ranked, summarized literature.

Emergency messages are answered with a fixed safety response and never
reach a provider. Every request is rate limited per user.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		creds = s
		if loaded := s.Loaded(); len(loaded) > 0 {
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", loaded)
		}
		if ignored := s.Ignored(); len(ignored) > 0 {
			fmt.Fprintf(os.Stderr, "Ignored unknown secret files: %v\n", ignored)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./medassist.yaml or ~/.config/medassist/medassist.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("medassist")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "medassist"))
		}
	}

	viper.SetEnvPrefix("MEDASSIST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
