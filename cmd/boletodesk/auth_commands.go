package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"boletodesk/internal/console"
)

// EnvPassword supplies the login password when --password is not given.
const EnvPassword = "BOLETODESK_PASSWORD"

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the backend and store the credential",
		Long:  "Log in to the backend and store the credential. The password comes from --password, then $" + EnvPassword + ", then the first line of stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := password
			if secret == "" {
				secret = os.Getenv(EnvPassword)
			}
			if secret == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password required (--password, $" + EnvPassword + " or stdin)")
				}
				secret = strings.TrimRight(line, "\r\n")
			}
			return ctx.withConsole(cmd, func(c context.Context, con *console.Console) error {
				login, err := con.Login(c, email, secret)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", login.User.Email)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Operator email")
	cmd.Flags().StringVar(&password, "password", "", "Operator password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withConsole(cmd, func(_ context.Context, con *console.Console) error {
				if err := con.Logout(); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Logged out")
				if con.TokenSource() == console.TokenConfig {
					fmt.Fprintln(out, "A token from the configuration is still in use")
				}
				return nil
			})
		},
	}
}
