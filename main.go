// Command chat-tender joins one Twitch chat room and serves the normalized
// chat log. It:
//   - Loads configuration and initializes structured logging and tracing.
//   - Optionally connects to Postgres for the stored chat token and keeps
//     that token refreshed.
//   - Builds the metadata cache (Helix + BetterTTV) and the in-memory log.
//   - Starts the chat session and the HTTP API (health, status, metrics,
//     log snapshot, SSE and WebSocket streams, send endpoints).
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-tender/bttv"
	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/chatlog"
	"github.com/onnwee/chat-tender/config"
	"github.com/onnwee/chat-tender/db"
	"github.com/onnwee/chat-tender/metadata"
	"github.com/onnwee/chat-tender/oauth"
	"github.com/onnwee/chat-tender/server"
	"github.com/onnwee/chat-tender/telemetry"
	"github.com/onnwee/chat-tender/twitchapi"
	"github.com/onnwee/chat-tender/twitchirc"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chat-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Token store (optional)
	var database *sql.DB
	if cfg.DBDsn != "" {
		database = openTokenStore(ctx, cfg)
		if database != nil {
			defer func() {
				if err := database.Close(); err != nil {
					slog.Error("failed to close database", slog.Any("err", err))
				}
			}()
		}
	}

	// Metadata: Helix needs app credentials, BetterTTV is public.
	var helix metadata.Helix
	if cfg.HelixEnabled() {
		helix = &twitchapi.HelixClient{
			ClientID:       cfg.TwitchClientID,
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
		}
	} else {
		slog.Info("helix metadata disabled (TWITCH_CLIENT_ID/TWITCH_CLIENT_SECRET not set)")
	}
	cache := metadata.New(helix, &bttv.Client{})
	fetchers := chat.Fetchers{Metadata: cache}
	if helix != nil {
		fetchers.Clips = cache
		fetchers.EmoteSets = cache
	}

	store := chatlog.New(cfg.ChatLogLimit)
	session := chat.NewSession(cfg.Credentials(),
		twitchirc.Dialer(twitchirc.WithMaxReconnectInterval(cfg.ChatReconnectMaxInterval)),
		store,
		chat.WithFetchers(fetchers),
		chat.WithConnectTimeout(cfg.ChatConnectTimeout),
	)

	if err := cfg.ValidateChatReady(); err != nil {
		slog.Warn("chat session disabled", slog.Any("err", err))
	} else {
		go func() {
			if err := session.Start(ctx, cfg.TwitchChannel); err != nil {
				slog.Error("chat session failed to start", slog.Any("err", err), slog.String("channel", cfg.TwitchChannel))
			}
		}()
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		deps := server.Deps{DB: database, Session: session, Log: store, Metadata: cache}
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	session.Stop()
}

// openTokenStore connects to Postgres, migrates, fills a missing chat token
// from the store and starts the refresher. It returns nil when the store is
// unusable; the service then runs on the environment token alone.
func openTokenStore(ctx context.Context, cfg *config.Config) *sql.DB {
	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db, token store disabled", slog.Any("err", err))
		return nil
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(ctx, database); err != nil {
		slog.Error("failed to migrate db, token store disabled", slog.Any("err", err))
		_ = database.Close()
		return nil
	}

	store := &db.TokenStore{DB: database}
	if cfg.TwitchOAuthToken == "" {
		tok, err := store.GetOAuthToken(ctx, db.ProviderTwitch)
		switch {
		case err != nil:
			slog.Warn("failed to read stored chat token", slog.Any("err", err))
		case tok.AccessToken != "":
			cfg.TwitchOAuthToken = tok.AccessToken
			slog.Info("using stored chat token", slog.Time("expires_at", tok.Expiry))
		}
	}

	if cfg.HelixEnabled() {
		r := &oauth.Refresher{
			Store:    store,
			Provider: db.ProviderTwitch,
			Window:   15 * time.Minute,
			Refresh: func(rctx context.Context, refreshToken string) (db.Token, error) {
				res, err := twitchapi.RefreshToken(rctx, nil, cfg.TwitchClientID, cfg.TwitchClientSecret, refreshToken)
				if err != nil {
					return db.Token{}, err
				}
				return db.Token{
					AccessToken:  res.AccessToken,
					RefreshToken: res.RefreshToken,
					Expiry:       twitchapi.ComputeExpiry(res.ExpiresIn),
					Scope:        strings.Join(res.Scope, " "),
				}, nil
			},
			OnRefresh: func(tok db.Token) {
				slog.Info("chat token refreshed; used on the next connection", slog.Time("expires_at", tok.Expiry))
			},
		}
		r.Start(ctx, 5*time.Minute)
	}
	return database
}
