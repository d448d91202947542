// Package db provides the Postgres connection, schema migration, and the
// OAuth token store used for the chat login.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/chat-tender/crypto"
)

// ProviderTwitch is the oauth_tokens row holding the chat token.
const ProviderTwitch = "twitch"

var (
	// encryptor is the global encryptor instance for OAuth token encryption
	encryptor     crypto.Encryptor
	encryptorOnce sync.Once
	errEncryptor  error
)

// initEncryptor builds the keyring from ENCRYPTION_KEY and the comma separated
// retired keys in ENCRYPTION_KEY_PREVIOUS. Without ENCRYPTION_KEY tokens are
// stored in plaintext (encryption_version = 0).
func initEncryptor() {
	encryptorOnce.Do(func() {
		key := os.Getenv("ENCRYPTION_KEY")
		if key == "" {
			slog.Warn("ENCRYPTION_KEY not set, OAuth tokens will be stored in plaintext (not recommended for production)", slog.String("component", "db_encryption"))
			return
		}
		kr, err := crypto.NewKeyring(key, strings.Split(os.Getenv("ENCRYPTION_KEY_PREVIOUS"), ",")...)
		if err != nil {
			errEncryptor = fmt.Errorf("failed to initialize encryption: %w", err)
			slog.Error("encryption initialization failed", slog.Any("err", errEncryptor), slog.String("component", "db_encryption"))
			return
		}
		encryptor = kr
		slog.Info("OAuth token encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"), slog.String("key_id", kr.KeyID()))
	})
}

// getEncryptor returns the global encryptor, or nil when encryption is not configured.
func getEncryptor() (crypto.Encryptor, error) {
	initEncryptor()
	if errEncryptor != nil {
		return nil, errEncryptor
	}
	return encryptor, nil
}

// Connect opens a Postgres connection and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return database, nil
}

// Migrate brings the schema up to date using the embedded migrations.
func Migrate(ctx context.Context, database *sql.DB) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return RunMigrations(database)
}

// Token is one stored OAuth token.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// Empty reports whether no token is stored.
func (t Token) Empty() bool { return t.AccessToken == "" && t.RefreshToken == "" }

// UpsertOAuthToken stores or updates the token for a provider.
// If encryption is enabled (ENCRYPTION_KEY set), tokens are encrypted before storage.
// encryption_version=1 indicates encrypted tokens, version=0 indicates plaintext.
func UpsertOAuthToken(ctx context.Context, dbx *sql.DB, provider string, tok Token) error {
	enc, err := getEncryptor()
	if err != nil {
		return fmt.Errorf("get encryptor: %w", err)
	}

	encVersion := 0
	encKeyID := ""
	access, refresh := tok.AccessToken, tok.RefreshToken
	if enc != nil {
		encVersion = 1
		encKeyID = enc.KeyID()
		if access, err = crypto.EncryptString(enc, access); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refresh, err = crypto.EncryptString(enc, refresh); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	q := `INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, encryption_version, encryption_key_id, updated_at)
		  VALUES($1,$2,$3,$4,$5,$6,$7,NOW())
		  ON CONFLICT(provider) DO UPDATE SET
		    access_token=EXCLUDED.access_token,
		    refresh_token=EXCLUDED.refresh_token,
		    expires_at=EXCLUDED.expires_at,
		    scope=EXCLUDED.scope,
		    encryption_version=EXCLUDED.encryption_version,
		    encryption_key_id=EXCLUDED.encryption_key_id,
		    updated_at=NOW()`
	_, err = dbx.ExecContext(ctx, q, provider, access, refresh, tok.Expiry, strings.TrimSpace(tok.Scope), encVersion, encKeyID)
	return err
}

// GetOAuthToken retrieves the stored token; a zero Token if none is stored.
// Encrypted rows (encryption_version=1) are decrypted, plaintext rows are returned as is.
func GetOAuthToken(ctx context.Context, dbx *sql.DB, provider string) (Token, error) {
	var (
		tok        Token
		access     sql.NullString
		refresh    sql.NullString
		expiry     sql.NullTime
		scope      sql.NullString
		encVersion int
	)
	err := dbx.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, scope, COALESCE(encryption_version, 0)
		 FROM oauth_tokens WHERE provider = $1`, provider).
		Scan(&access, &refresh, &expiry, &scope, &encVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, nil
	}
	if err != nil {
		return Token{}, err
	}
	tok = Token{AccessToken: access.String, RefreshToken: refresh.String, Expiry: expiry.Time, Scope: scope.String}

	if encVersion == 1 {
		enc, err := getEncryptor()
		if err != nil {
			return Token{}, fmt.Errorf("get encryptor for decryption: %w", err)
		}
		if enc == nil {
			return Token{}, errors.New("token is encrypted but ENCRYPTION_KEY not configured")
		}
		if tok.AccessToken != "" {
			if tok.AccessToken, err = crypto.DecryptString(enc, tok.AccessToken); err != nil {
				return Token{}, fmt.Errorf("decrypt access token: %w", err)
			}
		}
		if tok.RefreshToken != "" {
			if tok.RefreshToken, err = crypto.DecryptString(enc, tok.RefreshToken); err != nil {
				return Token{}, fmt.Errorf("decrypt refresh token: %w", err)
			}
		}
	}
	return tok, nil
}

// TokenStore binds the token helpers to a database handle.
type TokenStore struct{ DB *sql.DB }

func (s *TokenStore) GetOAuthToken(ctx context.Context, provider string) (Token, error) {
	return GetOAuthToken(ctx, s.DB, provider)
}

func (s *TokenStore) UpsertOAuthToken(ctx context.Context, provider string, tok Token) error {
	return UpsertOAuthToken(ctx, s.DB, provider, tok)
}
