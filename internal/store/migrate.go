package store

import (
	"context"
	"embed"

	"github.com/pressly/goose/v3"

	"github.com/moonramp/moonramp/internal/merr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func gooseProvider(db *Store) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db.db, migrationsFS,
		goose.WithVerbose(false))
	if err != nil {
		return nil, merr.Wrap(merr.StoreFailure, "construct migration provider", err)
	}
	return provider, nil
}

// Migrate applies every pending migration (moonrampctl migrate).
func (s *Store) Migrate(ctx context.Context) error {
	provider, err := gooseProvider(s)
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return merr.Wrap(merr.StoreFailure, "apply migrations", err)
	}
	return nil
}

// Rollback reverts the most recently applied migration (moonrampctl
// rollback).
func (s *Store) Rollback(ctx context.Context) error {
	provider, err := gooseProvider(s)
	if err != nil {
		return err
	}
	if _, err := provider.Down(ctx); err != nil {
		return merr.Wrap(merr.StoreFailure, "rollback migration", err)
	}
	return nil
}

// Reapply rolls back and reapplies the most recent migration
// (moonrampctl reapply) — useful while iterating on a not-yet-shipped
// migration file.
func (s *Store) Reapply(ctx context.Context) error {
	if err := s.Rollback(ctx); err != nil {
		return err
	}
	return s.Migrate(ctx)
}

// Nuke rolls every migration all the way back (moonrampctl nuke).
func (s *Store) Nuke(ctx context.Context) error {
	provider, err := gooseProvider(s)
	if err != nil {
		return err
	}
	if _, err := provider.DownTo(ctx, 0); err != nil {
		return merr.Wrap(merr.StoreFailure, "nuke schema", err)
	}
	return nil
}

// MigrationStatus is one row of `moonrampctl list`.
type MigrationStatus struct {
	Source  string
	Applied bool
}

// List reports the applied/pending status of every known migration.
func (s *Store) List(ctx context.Context) ([]MigrationStatus, error) {
	provider, err := gooseProvider(s)
	if err != nil {
		return nil, err
	}
	sources, err := provider.Status(ctx)
	if err != nil {
		return nil, merr.Wrap(merr.StoreFailure, "list migrations", err)
	}
	out := make([]MigrationStatus, 0, len(sources))
	for _, src := range sources {
		out = append(out, MigrationStatus{
			Source:  src.Source.Path,
			Applied: src.State == goose.StateApplied,
		})
	}
	return out, nil
}
