// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package cli implements the passgate command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	// configFile is the path to the YAML configuration file. When empty,
	// the server runs with development defaults.
	configFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "passgate",
	Short: "passgate - passwordless WebAuthn authentication gateway",
	Long: `passgate is a passwordless authentication gateway built on WebAuthn.

It serves registration and login ceremonies over an HTTP JSON API, manages
opaque session tokens delivered as http-only cookies, and persists users
and credentials in memory or SQLite with optional Redis-backed challenge
storage.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: built-in development defaults)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
