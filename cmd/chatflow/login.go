package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	chatflow "github.com/chatflow-im/chatflow-go"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func promptLine(label string) (string, error) {
	fmt.Printf("%s: ", label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fmt.Printf("%s: ", label)
	data, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func saveSession(cfg *Config, session *chatflow.SessionData) error {
	cfg.Auth.Token = session.Token
	cfg.Auth.UserID = session.User.ID
	cfg.Auth.FirstName = session.User.FirstName
	cfg.Auth.LastName = session.User.LastName
	cfg.Auth.Email = session.User.Email

	// Some deployments omit the user object; fall back to the token claims.
	if cfg.Auth.UserID == 0 {
		if id, err := chatflow.UserIDFromToken(session.Token); err == nil {
			cfg.Auth.UserID = id
		}
	}
	return saveConfig(cfg)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getAnonClient()

		email, err := promptLine("Email")
		if err != nil {
			return err
		}
		password, err := promptPassword("Password")
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		session, err := client.Auth.SignIn(ctx, email, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		if err := saveSession(cfg, session); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}

		fmt.Printf("Logged in as %s <%s>\n", session.User.DisplayName(), session.User.Email)
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create a new account",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getAnonClient()

		firstName, err := promptLine("First name")
		if err != nil {
			return err
		}
		lastName, err := promptLine("Last name")
		if err != nil {
			return err
		}
		email, err := promptLine("Email")
		if err != nil {
			return err
		}
		password, err := promptPassword("Password")
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		session, err := client.Auth.SignUp(ctx, &chatflow.SignUpOptions{
			FirstName: firstName,
			LastName:  lastName,
			Email:     email,
			Password:  password,
		})
		if err != nil {
			return fmt.Errorf("signup failed: %w", err)
		}
		if err := saveSession(cfg, session); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}

		fmt.Printf("Account created for %s <%s>\n", session.User.DisplayName(), session.User.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored token and tear down the live connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		chatflow.DisconnectSocket()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}
