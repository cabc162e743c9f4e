package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/sodular/sodular-go/internal/client"
	"github.com/sodular/sodular-go/internal/model"
)

func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.Auth.Login(cmd.Context(), client.Credentials{Email: email, Password: password})
			if err != nil {
				return err
			}
			return printJSON(a.out, res.User)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func registerCmd(a *app) *cobra.Command {
	var user model.UserData
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.Auth.Register(cmd.Context(), user)
			if err != nil {
				return err
			}
			return printJSON(a.out, res.User)
		},
	}
	cmd.Flags().StringVar(&user.Email, "email", "", "account email")
	cmd.Flags().StringVar(&user.Password, "password", "", "account password")
	cmd.Flags().StringVar(&user.Username, "username", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.Auth.Logout(cmd.Context())
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.client.IsAuthenticated() {
				return errors.Join(errors.New("not signed in"), client.ErrUnauthorized)
			}
			me, err := a.client.Auth.Me(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(a.out, me)
		},
	}
}
