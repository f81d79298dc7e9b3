// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/medassist/internal/secrets"
	"github.com/pdiddy/medassist/pkg/types"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the provider fallback chain",
	Long: `Providers prints every configured provider in the order the router tries
them. Disabled providers are listed last and never called.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper(), creds)
		if err != nil {
			return err
		}
		printProviders(cmd.OutOrStdout(), cfg, creds)
		return nil
	},
}

func printProviders(w io.Writer, cfg types.Config, creds *secrets.Store) {
	fmt.Fprintf(w, "%-5s  %-12s  %-40s  %-8s  %s\n", "Order", "Provider", "Model", "Timeout", "Key")
	chain := types.ProviderChain(cfg.Providers)
	for i, p := range chain {
		fmt.Fprintf(w, "%-5d  %-12s  %-40s  %-8s  %s\n", i+1, p.ID, p.Model, effectiveTimeout(p, cfg), keyState(p, creds))
	}
	for _, p := range cfg.Providers {
		if !p.Enabled {
			fmt.Fprintf(w, "%-5s  %-12s  %-40s  %-8s  %s\n", "-", p.ID, p.Model, effectiveTimeout(p, cfg), "disabled")
		}
	}
	fmt.Fprintf(w, "\nretries per provider: %d, delay: %s\n", cfg.Retry.MaxRetries, cfg.Retry.Delay)
}

func effectiveTimeout(p types.ProviderSpec, cfg types.Config) string {
	if p.Timeout > 0 {
		return p.Timeout.String()
	}
	return cfg.Retry.Timeout.String()
}

// keyState reports whether p has an API key and where it came from.
func keyState(p types.ProviderSpec, creds *secrets.Store) string {
	name, ok := secrets.ProviderKey(p.ID)
	if !ok {
		return "n/a"
	}
	if p.APIKey == "" {
		env, _ := secrets.EnvVar(name)
		return fmt.Sprintf("missing (.secrets/%s or %s)", name, env)
	}
	if creds.Get(name) != p.APIKey {
		return "set (config)"
	}
	return "set (" + creds.Source(name) + ")"
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
