package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/danmuck/helpctl/internal/client"
	"github.com/danmuck/helpctl/internal/config"
	"github.com/danmuck/helpctl/internal/logging"
	"github.com/danmuck/helpctl/internal/protocol/session"
	"github.com/danmuck/helpctl/internal/server"
	"github.com/danmuck/helpctl/internal/tui"
	"github.com/spf13/cobra"
)

var errMissingUser = errors.New("missing <user> argument")

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "helpctl <user>",
		Short:         "Interactive client for the Help.com TCP line protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errMissingUser
			}
			return cobra.MaximumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(flags, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			cfg.User = args[0]
			return run(cmd.Context(), cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "config file (default ./"+defaultConfigPath+" when present)")
	f.StringVarP(&flags.host, "host", "H", "", "server host address")
	f.IntVarP(&flags.port, "port", "p", 0, "server port number")
	f.StringVarP(&flags.timeout, "timeout", "t", "", "heartbeat timeout before reconnecting (seconds or duration)")
	f.StringVar(&flags.adminAddr, "admin-addr", "", "serve /healthz, /status and /metrics on this address")
	f.BoolVar(&flags.noKeep, "no-keepalive", false, "connect only while a command is pending")

	cmd.AddCommand(newConfigCmd())
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, cfg config.ClientConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.Setup(logging.ProfileInteractive, cfg.LogLevel, cfg.LogFile)

	sess := session.DefaultConfig()
	sess.HeartbeatTimeout = cfg.Timeout
	c, err := client.New(client.Config{
		Host:             cfg.Host,
		Port:             cfg.Port,
		User:             cfg.User,
		Session:          sess,
		DisableKeepAlive: !cfg.KeepAlive,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.AdminAddr != "" {
		admin, err := server.NewAdmin(cfg.AdminAddr, c)
		if err != nil {
			return err
		}
		if err := admin.Start(); err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = admin.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Str("user", cfg.User).Str("addr", cfg.Address()).Dur("timeout", cfg.Timeout).Msg("session starting")
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, tui.Banner(cfg.User, cfg.Address()))
	fmt.Fprintln(out)

	menu := tui.NewMenu(ctx, c, cfg.User)
	if _, err := tea.NewProgram(menu, tea.WithContext(ctx), tea.WithOutput(out), tea.WithInput(cmd.InOrStdin())).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	}
	return nil
}
