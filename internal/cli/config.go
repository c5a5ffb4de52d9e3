// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cryptofolio/passgate/internal/config"
)

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

// configValidateCmd loads and validates a configuration file.
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration OK\n")
		fmt.Printf("  Listen:          %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("  Relying party:   %s (%s)\n", cfg.RelyingParty.ID, cfg.RelyingParty.DisplayName)
		fmt.Printf("  Storage backend: %s\n", cfg.Storage.Backend)
		fmt.Printf("  Challenge store: %s\n", cfg.Storage.Ephemeral.Backend)
		return nil
	},
}

// configShowCmd prints the effective configuration as YAML.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Secrets stay out of the output.
		cfg.JWT.Secret = ""
		cfg.Storage.Ephemeral.RedisPassword = ""

		return yaml.NewEncoder(os.Stdout).Encode(cfg)
	},
}

// configDefaultCmd prints the built-in development defaults as YAML.
var configDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return yaml.NewEncoder(os.Stdout).Encode(config.DefaultConfig())
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configDefaultCmd)
}
