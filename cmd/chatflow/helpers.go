package main

import (
	"fmt"
	"os"

	chatflow "github.com/chatflow-im/chatflow-go"
)

// getClient creates a ChatFlow client authenticated with the saved token.
func getClient() (*chatflow.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "Not logged in. Run 'chatflow login' first.")
		os.Exit(1)
	}

	var opts []chatflow.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, chatflow.WithBaseURL(cfg.Default.BaseURL))
	}
	return chatflow.NewClient(cfg.Auth.Token, opts...), cfg
}

// getAnonClient creates an unauthenticated client for signup/signin.
func getAnonClient() (*chatflow.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var opts []chatflow.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, chatflow.WithBaseURL(cfg.Default.BaseURL))
	}
	return chatflow.NewClient("", opts...), cfg
}
