package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/placementhub/vault/internal/server"
	"github.com/placementhub/vault/internal/server/config"
	"github.com/placementhub/vault/internal/server/models"
	"github.com/placementhub/vault/internal/server/services"
)

var (
	userName        string
	userEmail       string
	userRole        string
	userPasswordEnv string
)

func init() {
	createUserCmd.Flags().StringVar(&userName, "name", "", "display name")
	createUserCmd.Flags().StringVar(&userEmail, "email", "", "login email")
	createUserCmd.Flags().StringVar(&userRole, "role", string(models.RoleAdmin), "ADMIN, STAFF, STUDENT, RECRUITER or GUEST")
	createUserCmd.Flags().StringVar(&userPasswordEnv, "password-env", "VAULT_USER_PASSWORD", "environment variable holding the password")
	_ = createUserCmd.MarkFlagRequired("name")
	_ = createUserCmd.MarkFlagRequired("email")

	issueTokenCmd.Flags().StringVar(&userEmail, "email", "", "login email")
	issueTokenCmd.Flags().StringVar(&userPasswordEnv, "password-env", "VAULT_USER_PASSWORD", "environment variable holding the password")
	_ = issueTokenCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(issueTokenCmd)
}

func openApp(cmd *cobra.Command) (*server.App, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	return server.NewApp(cmd.Context(), cfg)
}

func passwordFromEnv() (string, error) {
	pw := os.Getenv(userPasswordEnv)
	if pw == "" {
		return "", fmt.Errorf("environment variable %s is empty", userPasswordEnv)
	}
	return pw, nil
}

// create-user is the only way to create ADMIN and STAFF accounts; the API
// registers students and recruiters only.
var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an account with any role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := models.ParseRole(userRole)
		if err != nil {
			return err
		}
		pw, err := passwordFromEnv()
		if err != nil {
			return err
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		user, err := app.Users().CreateUser(cmd.Context(), services.Registration{
			Name:     userName,
			Email:    userEmail,
			Password: pw,
			Role:     role,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", user.Role, user.Email, user.ID)
		return nil
	},
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Log in and print a session token for admin RPCs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := passwordFromEnv()
		if err != nil {
			return err
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		token, id, err := app.Users().Authenticate(cmd.Context(), userEmail, pw)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "token for %s expires at %s\n", id.Role, id.ExpiresAt.Format("2006-01-02 15:04:05Z07:00"))
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
