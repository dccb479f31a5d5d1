package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"staffdesk.org/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply, roll back or inspect schema migrations",
}

func init() {
	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, cmd *cobra.Command, m *migrate.Manager) error {
				applied, err := m.Up(ctx)
				for _, name := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
				}
				if err == nil && len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, cmd *cobra.Command, m *migrate.Manager) error {
				name, err := m.Down(ctx)
				if errors.Is(err, migrate.ErrNothingApplied) {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, cmd *cobra.Command, m *migrate.Manager) error {
				applied, err := m.Status(ctx)
				if err != nil {
					return err
				}
				pending, err := m.Pending(ctx)
				if err != nil {
					return err
				}
				for _, name := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied  %s\n", name)
				}
				for _, name := range pending {
					fmt.Fprintf(cmd.OutOrStdout(), "pending  %s\n", name)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Load demo end-user data",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, cmd *cobra.Command, m *migrate.Manager) error {
				return m.Seed(ctx)
			}),
		},
	)
}

func withManager(fn func(context.Context, *cobra.Command, *migrate.Manager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		m := migrate.NewManager(store.DB(), migrate.Migrations(), migrate.WithSeeds(migrate.Seeds()))
		return fn(ctx, cmd, m)
	}
}
