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

	"tryon/internal/adapter/repo"
	"tryon/internal/credits"
	"tryon/internal/domain"
	"tryon/internal/infra"
)

func main() {
	var (
		idFlag      string
		emailFlag   string
		planFlag    string
		creditsFlag int
		addFlag     int
	)

	flag.StringVar(&idFlag, "id", "", "user ID to update")
	flag.StringVar(&emailFlag, "email", "", "user email to update")
	flag.StringVar(&planFlag, "plan", "", "plan to assign (free, starter, pro, business)")
	flag.IntVar(&creditsFlag, "credits", -1, "balance to set; defaults to the plan's monthly credits")
	flag.IntVar(&addFlag, "add", 0, "adjust the current balance by this amount instead of setting a plan")
	flag.Parse()

	_ = godotenv.Load()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if planFlag == "" && addFlag == 0 {
		exitWithError(errors.New("one of -plan or -add is required"))
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

	logger := infra.NewLogger("cli", "creditgrant")
	profiles := repo.NewProfileRepository(infra.NewSQLRunner(pool, logger))

	if userID == "" {
		p, err := profiles.GetProfileByEmail(ctx, email)
		if err != nil {
			exitWithError(fmt.Errorf("failed to load user %s: %w", email, err))
		}
		userID = p.UserID
	}

	var profile *domain.Profile
	if addFlag != 0 {
		profile, err = profiles.AddCredits(ctx, userID, addFlag)
	} else {
		plan, perr := parsePlan(planFlag)
		if perr != nil {
			exitWithError(perr)
		}
		amount := creditsFlag
		if amount < 0 {
			amount = credits.EntitlementsFor(plan).MonthlyCredits
		}
		profile, err = profiles.SetPlanCredits(ctx, userID, email, plan, amount)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to update user: %w", err))
	}

	fmt.Printf("User %s (%s) plan=%s credits=%d\n", profile.UserID, profile.Email, profile.Plan, profile.Credits)
}

func parsePlan(raw string) (domain.Plan, error) {
	plan := domain.Plan(strings.ToLower(strings.TrimSpace(raw)))
	switch plan {
	case domain.PlanFree, domain.PlanStarter, domain.PlanPro, domain.PlanBusiness:
		return plan, nil
	default:
		return "", fmt.Errorf("unsupported plan %q", raw)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
