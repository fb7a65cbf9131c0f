package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/helpctl/internal/config"
	"github.com/spf13/cobra"
)

// defaultConfigPath is read when present and --config is not given.
const defaultConfigPath = "helpctl.toml"

type rootFlags struct {
	configPath string
	host       string
	port       int
	timeout    string
	adminAddr  string
	noKeep     bool
}

// resolveConfig layers flags over the config file over defaults.
// changed reports whether a flag was set on the command line.
func resolveConfig(flags rootFlags, changed func(name string) bool) (config.ClientConfig, error) {
	cfg := config.Default()

	path := strings.TrimSpace(flags.configPath)
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		loaded, err := config.Load(path)
		if err != nil {
			return config.ClientConfig{}, err
		}
		cfg = loaded
	} else if explicit {
		return config.ClientConfig{}, fmt.Errorf("config file %s: %w", path, err)
	}

	if changed("host") {
		cfg.Host = strings.TrimSpace(flags.host)
	}
	if changed("port") {
		cfg.Port = flags.port
	}
	if changed("timeout") {
		d, err := config.ParseTimeout(flags.timeout)
		if err != nil {
			return config.ClientConfig{}, err
		}
		cfg.Timeout = d
	}
	if changed("admin-addr") {
		cfg.AdminAddr = strings.TrimSpace(flags.adminAddr)
	}
	if changed("no-keepalive") {
		cfg.KeepAlive = !flags.noKeep
	}

	if err := config.Validate(cfg); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or validate a helpctl config file",
	}

	var (
		kind  string
		force bool
	)
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := defaultConfigPath
			if len(args) == 1 {
				target = args[0]
			}
			if err := config.WriteTemplate(target, kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s config to %s\n", kind, target)
			return nil
		},
	}
	initCmd.Flags().StringVar(&kind, "kind", "client", "template kind: client|admin")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := defaultConfigPath
			if len(args) == 1 {
				target = args[0]
			}
			cfg, err := config.Load(target)
			if err != nil {
				if errors.Is(err, config.ErrInvalidConfig) {
					return fmt.Errorf("%s: %w", target, err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Validated %s (address %s, timeout %s)\n", target, cfg.Address(), cfg.Timeout)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
