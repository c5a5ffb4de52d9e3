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

	"github.com/cryptofolio/passgate/internal/config"
	"github.com/cryptofolio/passgate/internal/server"
)

// serveCmd runs the authentication gateway until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authentication gateway",
	Long: `Start the passgate server and serve the authentication API until
SIGINT or SIGTERM is received.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		srv, err := server.New(cfg, Version)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		shutdownCtx := server.SetupSignalHandler()

		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		<-shutdownCtx.Done()

		return srv.Shutdown()
	},
}

// loadConfig loads the configuration file, falling back to development
// defaults when no file is given. PASSGATE_CONFIG overrides the flag.
func loadConfig() (*config.Config, error) {
	path := configFile
	if envConfig := os.Getenv("PASSGATE_CONFIG"); envConfig != "" {
		path = envConfig
	}

	if path == "" {
		cfg := config.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
