package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moonramp/moonramp/internal/store"
)

// openStore is the shared entry point every subcommand uses to reach the
// database named by --db-url (or DATABASE_URL).
func openStore(cmd *cobra.Command) (*store.Store, context.Context, error) {
	dbURL, err := cmd.Flags().GetString("db-url")
	if err != nil {
		return nil, nil, err
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("--db-url (or DATABASE_URL) is required")
	}
	ctx := context.Background()
	st, err := store.New(ctx, dbURL)
	if err != nil {
		return nil, nil, err
	}
	return st, ctx, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply every pending schema migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ctx, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "roll back the most recently applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ctx, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Rollback(ctx); err != nil {
				return err
			}
			fmt.Println("last migration rolled back")
			return nil
		},
	}
}

func reapplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reapply",
		Short: "roll back and reapply the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ctx, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Reapply(ctx); err != nil {
				return err
			}
			fmt.Println("last migration reapplied")
			return nil
		},
	}
}

func nukeCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "nuke",
		Short: "drop every MoonRamp table (irreversible)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to nuke without --yes")
			}
			st, ctx, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Nuke(ctx); err != nil {
				return err
			}
			fmt.Println("schema dropped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the drop")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every known migration and whether it is applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ctx, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			statuses, err := st.List(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%-8s %s\n", state, s.Source)
			}
			return nil
		},
	}
}
