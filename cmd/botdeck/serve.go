package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/jclermont/botdeck/internal/api"
	"github.com/jclermont/botdeck/internal/auth"
	"github.com/jclermont/botdeck/internal/billing"
	"github.com/jclermont/botdeck/internal/bot"
	"github.com/jclermont/botdeck/internal/config"
	"github.com/jclermont/botdeck/internal/crypto"
	"github.com/jclermont/botdeck/internal/identity"
	"github.com/jclermont/botdeck/internal/invite"
	"github.com/jclermont/botdeck/internal/mail"
	"github.com/jclermont/botdeck/internal/metrics"
	"github.com/jclermont/botdeck/internal/oauth"
	"github.com/jclermont/botdeck/internal/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Botdeck server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	identityStore := identity.NewStore(pool)
	botStore := bot.NewStore(pool)

	codec := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	authService := auth.NewService(identityStore, cfg.Auth.GoogleDefaultRole)

	stateCipher, err := crypto.NewCipher(stateKey(cfg))
	if err != nil {
		return err
	}
	google := oauth.NewGoogle(oauth.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	})

	mailer := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	invites := invite.NewManager(identityStore, mailer, cfg.Invitations.TTL, cfg.Invitations.BaseURL)

	provider := billing.NewStripeProvider(cfg.Stripe.APIKey)
	materializer := billing.NewMaterializer(provider, botStore, logger)

	limiter := ratelimit.New(cfg.RateLimit.Login, cfg.RateLimit.Window)

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()
	})

	router := api.NewRouter(api.RouterDeps{
		Auth:           authService,
		Codec:          codec,
		Google:         google,
		State:          oauth.NewStateSealer(stateCipher),
		Invites:        invites,
		Materializer:   materializer,
		Identities:     identityStore,
		Bots:           botStore,
		Limiter:        limiter,
		Metrics:        m,
		DBPool:         pool,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}

// stateKey returns the hex AES key for sealing OAuth state. When none is
// configured it is derived from the JWT secret so single-secret deployments
// still work.
func stateKey(cfg *config.Config) string {
	if cfg.Google.StateKey != "" {
		return cfg.Google.StateKey
	}
	sum := sha256.Sum256([]byte(cfg.Auth.JWTSecret))
	return hex.EncodeToString(sum[:])
}
