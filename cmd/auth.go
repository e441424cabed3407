package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ecocollect/ecocollect-cli/pkg/ecoapi"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the backend account and session",
	Long:  "Register, log in to the Eco-Collect backend and keep the session tokens in the local store, show the profile and reset passwords.",
}

// -- auth login --

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("ECOCOLLECT_PASSWORD")
		}
		return runAuthLogin(cmd.Context(), os.Stdout, email, password)
	},
}

func runAuthLogin(ctx context.Context, w io.Writer, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return eris.New("auth login: --email and --password (or ECOCOLLECT_PASSWORD) are required")
	}

	env, err := initCenters(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	if env.Store == nil {
		return eris.New("auth login: a store (store.driver sqlite or postgres) is required to keep the session")
	}

	// The token hook persists the session under this email.
	env.Session.setEmail(email)
	sess, err := env.Client.Login(ctx, email, password)
	if err != nil {
		return eris.Wrap(err, "auth login")
	}

	name := email
	if sess.User != nil && sess.User.UserName != "" {
		name = sess.User.UserName
	}
	zap.L().Info("logged in", zap.String("email", email))
	_, err = fmt.Fprintf(w, "Logged in as %s\n", name)
	return err
}

// -- auth register --

var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a backend account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		r := ecoapi.Registration{}
		r.UserName, _ = cmd.Flags().GetString("user-name")
		r.Email, _ = cmd.Flags().GetString("email")
		r.Password, _ = cmd.Flags().GetString("password")
		r.Role, _ = cmd.Flags().GetString("role")
		r.TermsApproved, _ = cmd.Flags().GetBool("accept-terms")
		if r.Password == "" {
			r.Password = os.Getenv("ECOCOLLECT_PASSWORD")
		}
		return runAuthRegister(cmd.Context(), os.Stdout, r)
	},
}

func runAuthRegister(ctx context.Context, w io.Writer, r ecoapi.Registration) error {
	r.UserName = strings.TrimSpace(r.UserName)
	r.Email = strings.TrimSpace(r.Email)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	if r.UserName == "" || r.Email == "" || r.Password == "" {
		return eris.New("auth register: --user-name, --email and --password (or ECOCOLLECT_PASSWORD) are required")
	}
	switch r.Role {
	case "":
		r.Role = "civilian"
	case "civilian", "corporate":
	default:
		return eris.Errorf("auth register: role must be civilian or corporate, got %q", r.Role)
	}

	env, err := initCenters(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	// Backends that log the new account in return tokens; keep them.
	env.Session.setEmail(r.Email)
	sess, err := env.Client.Register(ctx, r)
	if err != nil {
		return eris.Wrap(err, "auth register")
	}

	role := r.Role
	if sess.User != nil && sess.User.Role != "" {
		role = sess.User.Role
	}
	zap.L().Info("registered", zap.String("email", r.Email), zap.String("role", role))
	_, err = fmt.Fprintf(w, "Registered %s (%s)\n", r.UserName, role)
	return err
}

// -- auth logout --

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the stored tokens",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAuthLogout(cmd.Context(), os.Stdout)
	},
}

func runAuthLogout(ctx context.Context, w io.Writer) error {
	env, err := initCenters(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	if env.Store == nil {
		_, err = fmt.Fprintln(w, "No stored session.")
		return err
	}

	if !env.Client.Tokens().Empty() {
		if err := env.Client.Logout(ctx); err != nil {
			zap.L().Warn("backend logout failed, clearing local session anyway", zap.Error(err))
		}
	}
	if err := env.Store.ClearSession(ctx); err != nil {
		return eris.Wrap(err, "auth logout")
	}
	_, err = fmt.Fprintln(w, "Logged out.")
	return err
}

// -- auth status --

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session and the account profile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAuthStatus(cmd.Context(), os.Stdout)
	},
}

func runAuthStatus(ctx context.Context, w io.Writer) error {
	env, err := initCenters(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if env.Store == nil {
		_, err = fmt.Fprintln(w, "Not logged in (no store configured).")
		return err
	}
	sess, err := env.Store.LoadSession(ctx)
	if err != nil {
		return eris.Wrap(err, "auth status")
	}
	if sess == nil || sess.AccessToken == "" {
		_, err = fmt.Fprintln(w, "Not logged in.")
		return err
	}
	if _, err := fmt.Fprintf(w, "Logged in as %s (since %s)\n", sess.Email, sess.UpdatedAt.Local().Format("2006-01-02 15:04")); err != nil {
		return err
	}

	user, err := env.Client.Profile(ctx)
	if err != nil {
		zap.L().Warn("profile lookup failed", zap.Error(err))
		_, err = fmt.Fprintln(w, "Profile unavailable.")
		return err
	}
	_, err = fmt.Fprintf(w, "User:   %s\nRole:   %s\nPoints: %d\n", user.UserName, user.Role, user.PointScore)
	return err
}

// -- auth forgot-password / reset-password --

var authForgotCmd = &cobra.Command{
	Use:   "forgot-password",
	Short: "Request a password reset token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, _ := cmd.Flags().GetString("email")
		return runAuthForgotPassword(cmd.Context(), os.Stdout, email)
	},
}

func runAuthForgotPassword(ctx context.Context, w io.Writer, email string) error {
	if strings.TrimSpace(email) == "" {
		return eris.New("auth forgot-password: --email is required")
	}
	env, err := initCenters(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	token, err := env.Client.RequestPasswordReset(ctx, email)
	if err != nil {
		return eris.Wrap(err, "auth forgot-password")
	}
	if token == "" {
		_, err = fmt.Fprintln(w, "Reset requested. Check your email for the token.")
		return err
	}
	_, err = fmt.Fprintf(w, "Reset token: %s\n", token)
	return err
}

var authResetCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Set a new password with a reset token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		token, _ := cmd.Flags().GetString("token")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("ECOCOLLECT_PASSWORD")
		}
		return runAuthResetPassword(cmd.Context(), os.Stdout, token, password)
	},
}

func runAuthResetPassword(ctx context.Context, w io.Writer, token, password string) error {
	if strings.TrimSpace(token) == "" || password == "" {
		return eris.New("auth reset-password: --token and --password (or ECOCOLLECT_PASSWORD) are required")
	}
	env, err := initCenters(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.Client.ResetPassword(ctx, token, password); err != nil {
		return eris.Wrap(err, "auth reset-password")
	}
	_, err = fmt.Fprintln(w, "Password updated. Log in with the new password.")
	return err
}

func init() {
	authLoginCmd.Flags().String("email", "", "account email")
	authLoginCmd.Flags().String("password", "", "account password (or set ECOCOLLECT_PASSWORD)")

	authRegisterCmd.Flags().String("user-name", "", "display name")
	authRegisterCmd.Flags().String("email", "", "account email")
	authRegisterCmd.Flags().String("password", "", "account password (or set ECOCOLLECT_PASSWORD)")
	authRegisterCmd.Flags().String("role", "civilian", "account role: civilian or corporate")
	authRegisterCmd.Flags().Bool("accept-terms", false, "accept the terms of service")

	authForgotCmd.Flags().String("email", "", "account email")
	authResetCmd.Flags().String("token", "", "reset token from forgot-password")
	authResetCmd.Flags().String("password", "", "new password (or set ECOCOLLECT_PASSWORD)")

	authCmd.AddCommand(authRegisterCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authForgotCmd)
	authCmd.AddCommand(authResetCmd)
	rootCmd.AddCommand(authCmd)
}
