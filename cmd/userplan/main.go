package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"studio/internal/adapter/repo"
	"studio/internal/domain"
	"studio/internal/infra"
)

func main() {
	_ = godotenv.Load()

	var (
		emailFlag string
		planFlag  string
	)
	flag.StringVar(&emailFlag, "email", "", "profile email to update")
	flag.StringVar(&planFlag, "plan", string(domain.PlanPro), "plan to assign (free or pro)")
	flag.Parse()

	email := strings.TrimSpace(emailFlag)
	plan := domain.Plan(strings.TrimSpace(strings.ToLower(planFlag)))
	if email == "" {
		exitWithError(errors.New("-email is required"))
	}
	if !plan.Valid() {
		exitWithError(fmt.Errorf("unsupported plan %q", planFlag))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "userplan")
	profiles := repo.NewProfileRepository(infra.NewSQLRunner(pool, logger))

	profile, err := profiles.SetPlan(ctx, email, plan)
	if errors.Is(err, domain.ErrNotFound) {
		exitWithError(fmt.Errorf("no profile with email %s", email))
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to update plan: %w", err))
	}

	fmt.Printf("Profile %s (%s) updated to plan %s\n", profile.ID, profile.Email, profile.Plan)
	fmt.Printf("quota_daily=%d\n", profile.QuotaDaily)
	fmt.Printf("quota_used=%d\n", profile.QuotaUsed)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
