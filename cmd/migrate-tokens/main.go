// Command migrate-tokens encrypts stored OAuth tokens that were written before
// ENCRYPTION_KEY was configured (encryption_version=0) to AES-256-GCM
// (encryption_version=1). With --rotate it also re-encrypts tokens sealed
// with a retired key under the current one.
//
// Usage:
//
//	migrate-tokens [--dry-run] [--provider PROVIDER] [--rotate] [--status]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
//	ENCRYPTION_KEY_PREVIOUS: Comma separated retired keys (needed by --rotate)
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/chat-tender/crypto"
	"github.com/onnwee/chat-tender/db"
)

// tokenRow is an oauth_tokens row selected for migration.
type tokenRow struct {
	Provider     string
	AccessToken  string
	RefreshToken string
	Version      int
	KeyID        string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dryRun   bool
		provider string
		rotate   bool
		status   bool
	)
	cmd := &cobra.Command{
		Use:           "migrate-tokens",
		Short:         "Encrypt plaintext OAuth tokens in the token store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

			dsn := os.Getenv("DB_DSN")
			if dsn == "" {
				return errors.New("DB_DSN environment variable is required")
			}
			ctx := cmd.Context()
			database, err := db.Connect(ctx, dsn)
			if err != nil {
				return err
			}
			defer database.Close()

			if status {
				return reportStatus(ctx, database)
			}

			key := os.Getenv("ENCRYPTION_KEY")
			if key == "" {
				return errors.New("ENCRYPTION_KEY environment variable is required for migration")
			}
			keyring, err := crypto.NewKeyring(key, strings.Split(os.Getenv("ENCRYPTION_KEY_PREVIOUS"), ",")...)
			if err != nil {
				return fmt.Errorf("initialize encryptor: %w", err)
			}
			if err := migrateTokens(ctx, database, keyring, options{dryRun: dryRun, provider: provider, rotate: rotate}); err != nil {
				return err
			}
			slog.Info("migration completed successfully")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be migrated without making changes")
	cmd.Flags().StringVar(&provider, "provider", "", "migrate the token of one provider only (default: all)")
	cmd.Flags().BoolVar(&rotate, "rotate", false, "re-encrypt tokens sealed with a retired key")
	cmd.Flags().BoolVar(&status, "status", false, "report token counts per encryption version and exit")
	return cmd
}

type options struct {
	dryRun   bool
	provider string
	rotate   bool
}

// migrateTokens encrypts all plaintext tokens, optionally limited to one
// provider. With opts.rotate, tokens sealed under another key id are
// re-encrypted with the current key.
func migrateTokens(ctx context.Context, database *sql.DB, enc crypto.Encryptor, opts options) error {
	query := `SELECT provider, COALESCE(access_token, ''), COALESCE(refresh_token, ''),
		       COALESCE(encryption_version, 0), COALESCE(encryption_key_id, '')
		FROM oauth_tokens
		WHERE (COALESCE(encryption_version, 0) = 0
		       OR ($1 AND encryption_version = 1 AND COALESCE(encryption_key_id, '') <> $2))`
	args := []any{opts.rotate, enc.KeyID()}
	if opts.provider != "" {
		query += " AND provider = $3"
		args = append(args, opts.provider)
	}
	query += " ORDER BY provider"

	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query tokens: %w", err)
	}
	var tokens []tokenRow
	for rows.Next() {
		var tr tokenRow
		if err := rows.Scan(&tr.Provider, &tr.AccessToken, &tr.RefreshToken, &tr.Version, &tr.KeyID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan token row: %w", err)
		}
		tokens = append(tokens, tr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating token rows: %w", err)
	}

	if len(tokens) == 0 {
		slog.Info("no tokens found to migrate")
		return nil
	}
	slog.Info("found tokens to migrate", slog.Int("count", len(tokens)), slog.Bool("dry_run", opts.dryRun))

	migrated, failed := 0, 0
	for i, tr := range tokens {
		logger := slog.With(slog.String("provider", tr.Provider), slog.Int("encryption_version", tr.Version),
			slog.Int("index", i+1), slog.Int("total", len(tokens)))
		if opts.dryRun {
			logger.Info("would migrate token (dry-run)")
			migrated++
			continue
		}
		if err := migrateToken(ctx, database, enc, tr); err != nil {
			logger.Error("failed to migrate token", slog.Any("error", err))
			failed++
			continue
		}
		logger.Info("migrated token successfully")
		migrated++
	}

	slog.Info("migration summary",
		slog.Int("total", len(tokens)),
		slog.Int("migrated", migrated),
		slog.Int("errors", failed),
		slog.Bool("dry_run", opts.dryRun))
	if failed > 0 {
		return fmt.Errorf("migration completed with %d errors", failed)
	}
	return nil
}

// migrateToken seals a single row under the current key. The update is
// guarded on the version and key id that were read, so a row changed
// concurrently is left alone.
func migrateToken(ctx context.Context, database *sql.DB, enc crypto.Encryptor, tr tokenRow) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	accessPlain, refreshPlain := tr.AccessToken, tr.RefreshToken
	if tr.Version == 1 {
		if accessPlain, err = crypto.DecryptString(enc, tr.AccessToken); err != nil {
			return fmt.Errorf("decrypt access token: %w", err)
		}
		if refreshPlain, err = crypto.DecryptString(enc, tr.RefreshToken); err != nil {
			return fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	access, err := crypto.EncryptString(enc, accessPlain)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := crypto.EncryptString(enc, refreshPlain)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE oauth_tokens
		SET access_token = $1,
		    refresh_token = $2,
		    encryption_version = 1,
		    encryption_key_id = $3,
		    updated_at = NOW()
		WHERE provider = $4
		  AND COALESCE(encryption_version, 0) = $5
		  AND COALESCE(encryption_key_id, '') = $6`,
		access, refresh, enc.KeyID(), tr.Provider, tr.Version, tr.KeyID)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("expected 1 row updated, got %d (token may have been modified concurrently)", n)
	}
	return tx.Commit()
}

// versionCounts returns the number of stored tokens per encryption version.
func versionCounts(ctx context.Context, database *sql.DB) (map[int]int, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT COALESCE(encryption_version, 0) AS v, COUNT(*)
		FROM oauth_tokens
		GROUP BY v
		ORDER BY v`)
	if err != nil {
		return nil, fmt.Errorf("query validation: %w", err)
	}
	defer rows.Close()
	counts := make(map[int]int)
	for rows.Next() {
		var version, count int
		if err := rows.Scan(&version, &count); err != nil {
			return nil, fmt.Errorf("scan validation row: %w", err)
		}
		counts[version] = count
	}
	return counts, rows.Err()
}

func reportStatus(ctx context.Context, database *sql.DB) error {
	counts, err := versionCounts(ctx, database)
	if err != nil {
		return err
	}
	total := 0
	for version, count := range counts {
		desc := fmt.Sprintf("unknown version %d", version)
		switch version {
		case 0:
			desc = "plaintext"
		case 1:
			desc = "encrypted (AES-256-GCM)"
		}
		slog.Info("token encryption status",
			slog.Int("encryption_version", version),
			slog.String("description", desc),
			slog.Int("count", count))
		total += count
	}
	slog.Info("total tokens", slog.Int("count", total))
	return nil
}
