/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-blogapi/config"
	"github.com/acronis/go-blogapi/internal/app"
	"github.com/acronis/go-blogapi/internal/buildinfo"
	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/service"
)

const (
	envVarEnv  = app.EnvVarsPrefix + "_ENV"
	defaultEnv = "development"
)

type rootFlags struct {
	configPath string
	env        string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "blogapi",
		Short:         "Blog posts REST API with per-client rate limiting",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"path to the configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVarP(&flags.env, "env", "e", "",
		fmt.Sprintf("environment name, .env.<env> is loaded if exists (default is $%s or %q)", envVarEnv, defaultEnv))

	rootCmd.AddCommand(newServeCommand(flags), newCheckConfigCommand(flags), newVersionCommand())
	return rootCmd
}

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger, closeLogger := log.NewLogger(cfg.Log)
			defer closeLogger()

			blogApp, err := app.New(cmd.Context(), cfg, logger, app.Opts{})
			if err != nil {
				logger.Error("failed to create application", log.Error(err))
				return err
			}
			svc := service.NewWithOpts(logger, blogApp, service.Opts{MetricsRegisterer: blogApp.Registry})
			return svc.StartContext(cmd.Context())
		},
	}
}

func newCheckConfigCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print effective rate limiting settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(map[string]interface{}{"rateLimit": cfg.RateLimit})
			if err != nil {
				return fmt.Errorf("marshal rate limit config: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (%d users)\n%s", len(cfg.Auth.Users), out)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := buildinfo.Get()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "blogapi %s", info.Version)
			if info.Revision != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), " (%s)", info.Revision)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), " %s\n", info.GoVersion)
		},
	}
}

func loadConfig(flags *rootFlags) (*app.Config, error) {
	if err := loadEnvFiles(flags.env); err != nil {
		return nil, err
	}
	dataType := config.DataTypeYAML
	if strings.EqualFold(filepath.Ext(flags.configPath), ".json") {
		dataType = config.DataTypeJSON
	}
	cfg, err := app.LoadConfig(flags.configPath, dataType)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// loadEnvFiles loads .env.<env> and then .env. Variables that are already set are not overridden.
func loadEnvFiles(env string) error {
	if env == "" {
		if env = os.Getenv(envVarEnv); env == "" {
			env = defaultEnv
		}
	}
	for _, name := range []string{".env." + env, ".env"} {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}
