package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/jclermont/botdeck/internal/config"
	"github.com/jclermont/botdeck/internal/identity"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the initial admin account",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := identity.NewStore(pool)

	// Check if seed has already run.
	existing, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("checking existing identities: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("identities already exist, skipping seed")
		return nil
	}

	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return fmt.Errorf("generating password: %w", err)
	}
	password := base64.RawURLEncoding.EncodeToString(b)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	admin, err := store.Create(ctx, identity.CreateInput{
		Email:         "admin@localhost",
		Name:          "Admin",
		Role:          identity.RoleAdmin,
		PasswordHash:  string(hash),
		EmailVerified: true,
		Active:        true,
	})
	if err != nil {
		return fmt.Errorf("creating admin identity: %w", err)
	}

	slog.Info("created admin identity", "id", admin.ID, "email", admin.Email)
	fmt.Printf("\n=== Initial Admin Created ===\n")
	fmt.Printf("Email:     %s\n", admin.Email)
	fmt.Printf("Password:  %s\n", password)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST http://localhost:8080/api/v1/auth/login -d '{\"email\":\"%s\",\"password\":\"%s\"}'\n", admin.Email, password)

	return nil
}
