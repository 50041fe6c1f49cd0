package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tryon/internal/infra"
	"tryon/internal/reconcile"
	"tryon/internal/storage"
)

func main() {
	var (
		prefixFlag string
		repairFlag bool
	)
	flag.StringVar(&prefixFlag, "prefix", "", "only scan keys under this prefix (e.g. a user id)")
	flag.BoolVar(&repairFlag, "repair", false, "insert gallery rows for orphaned assets")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger("cli", "reconcile")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		exitWithError(err)
	}
	index, err := reconcile.OpenSQLIndex(ctx, cfg.DatabaseURL)
	if err != nil {
		exitWithError(err)
	}
	defer index.Close()

	report, err := reconcile.New(store, index, logger).Run(ctx, prefixFlag, repairFlag)
	if err != nil {
		exitWithError(err)
	}

	for _, o := range report.Orphans {
		fmt.Printf("orphan %s owner=%s type=%s size=%d\n", o.Key, o.OwnerID, o.Type, o.Object.Size)
	}
	fmt.Printf("scanned=%d skipped=%d orphans=%d repaired=%d\n",
		report.Scanned, report.Skipped, len(report.Orphans), report.Repaired)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
