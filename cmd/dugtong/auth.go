package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"dugtong/internal/apiclient"
	"dugtong/internal/domain"
	"dugtong/internal/navigation"
	"dugtong/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	loginContact  string
	loginPassword string
	menuRole      string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the REST API and keep the session tokens locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		password := loginPassword
		if password == "" {
			password = os.Getenv("DUGTONG_PASSWORD")
		}
		var resp service.LoginResponse
		err := cli.api.Post(cmd.Context(), "/auth/login", service.LoginRequest{
			ContactNumber: loginContact,
			Password:      password,
		}, &resp, apiclient.NoAuth())
		if err != nil {
			return err
		}
		if err := cli.tokens.Set(cmd.Context(), apiclient.Tokens{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", resp.User.FullName, resp.User.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke and forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := cli.tokens.Get(cmd.Context())
		if err != nil {
			return err
		}
		if t.RefreshToken != "" && cli.cfg.APIBaseURL != "" {
			err := cli.api.Post(cmd.Context(), "/auth/logout", map[string]string{"refreshToken": t.RefreshToken}, nil, apiclient.NoAuth())
			if err != nil {
				cli.log.Warn("Server logout failed; clearing local session anyway", zap.Error(err))
			}
		}
		return cli.tokens.Clear(cmd.Context())
	},
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "List the screens a role may open",
	RunE: func(cmd *cobra.Command, args []string) error {
		var role *domain.Role
		switch {
		case menuRole != "":
			r, ok := domain.ParseRole(menuRole)
			if !ok {
				return fmt.Errorf("unknown role %q", menuRole)
			}
			role = &r
		case cli.remote():
			u, err := currentUser(cmd.Context())
			if err != nil {
				return err
			}
			role = &u.Role
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LABEL\tPATH\tCAPABILITY")
		for _, item := range navigation.DefaultPolicy().FilterMenu(role) {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", item.Label, item.Path, item.Capability)
		}
		return tw.Flush()
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginContact, "contact", "", "contact number")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (default $DUGTONG_PASSWORD)")
	_ = loginCmd.MarkFlagRequired("contact")

	menuCmd.Flags().StringVar(&menuRole, "role", "", "role to preview (default: the signed-in user's role)")
}

// currentUser the account behind the stored session.
func currentUser(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := cli.api.Get(ctx, "/auth/me", &u); err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			return nil, errors.New("not signed in; run `dugtong login`")
		}
		return nil, err
	}
	return &u, nil
}
