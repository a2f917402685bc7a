package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrylevesque/firenet/internal/api"
	"github.com/harrylevesque/firenet/internal/app"
	"github.com/harrylevesque/firenet/internal/auth"
	"github.com/harrylevesque/firenet/internal/statussync"
)

func (c *cli) loginCmd() *cobra.Command {
	var password string
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and bind the session to this device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromStdin {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					password = strings.TrimRight(sc.Text(), "\r")
				}
				if err := sc.Err(); err != nil {
					return fmt.Errorf("read password: %w", err)
				}
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := a.Service.Login(ctx, args[0], password); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", strings.TrimSpace(args[0]))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Refresh and show the account status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				o := a.Service.Refresh(ctx)
				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if err := enc.Encode(api.NewOutcomeView(o)); err != nil {
						return err
					}
				} else {
					printOutcome(cmd.OutOrStdout(), o)
				}
				if o.Kind != statussync.KindSuccess {
					return o.Err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and wipe the local session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				a.Service.Logout(ctx, a.Session.Token())
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func (c *cli) deviceIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device-id",
		Short: "Print the device identity sent at login",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.Service.DeviceID())
				return nil
			})
		},
	}
}

// requireToken returns the stored token or ErrNotLoggedIn.
func requireToken(a *app.App) (string, error) {
	token := a.Session.Token()
	if token == "" {
		return "", auth.ErrNotLoggedIn
	}
	return token, nil
}

func (c *cli) reportUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report-update",
		Short: "Report the app version unless already reported",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				token, err := requireToken(a)
				if err != nil {
					return err
				}
				sent, err := a.Service.ReportAppUpdateIfNeeded(ctx, token)
				if err != nil {
					return err
				}
				if sent {
					fmt.Fprintf(cmd.OutOrStdout(), "Reported version %s\n", a.Config.App.Version)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Version %s already reported\n", a.Config.App.Version)
				}
				return nil
			})
		},
	}
}

func (c *cli) promptSeenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompt-seen",
		Short: "Acknowledge the update prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				token, err := requireToken(a)
				if err != nil {
					return err
				}
				if err := a.Service.UpdatePromptSeen(ctx, token); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Update prompt acknowledged")
				return nil
			})
		},
	}
}

func (c *cli) keepAliveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keepalive",
		Short: "Ping the service with the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := requireToken(a); err != nil {
					return err
				}
				if err := a.Service.KeepAlive(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "OK")
				return nil
			})
		},
	}
}

func (c *cli) pushTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push-token <token>",
		Short: "Register a push token for the stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Service.RegisterPushToken(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Push token registered")
				return nil
			})
		},
	}
}

var errBadPair = errors.New("expected key=value")

// parsePairs turns key=value arguments into a push data payload.
func parsePairs(args []string) (map[string]string, error) {
	data := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q", errBadPair, arg)
		}
		data[k] = v
	}
	return data, nil
}

func (c *cli) pushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push key=value...",
		Short: "Deliver a push payload locally, e.g. action=FORCE_LOGOUT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parsePairs(args)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res := a.Push.Handle(data)
				fmt.Fprintln(cmd.OutOrStdout(), res.String())
				for _, n := range a.Board.Drain() {
					printNotice(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}
}
