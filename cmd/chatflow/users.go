package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	usersPage     int
	usersPageSize int
)

func init() {
	usersCmd.Flags().IntVar(&usersPage, "page", 1, "Page number")
	usersCmd.Flags().IntVar(&usersPageSize, "page-size", 20, "Page size")
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List registered users",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		page, err := client.Users.List(ctx, usersPage, usersPageSize)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		for _, u := range page.Records {
			fmt.Printf("%-6d %-30s %s\n", u.ID, u.DisplayName(), u.Email)
		}
		fmt.Printf("\nPage %d of %d\n", page.PaginationInfo.CurrentPage, page.PaginationInfo.TotalPages)
		return nil
	},
}
