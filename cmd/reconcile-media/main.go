package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"abocaments-api/internal/config"
	"abocaments-api/internal/server"
	"abocaments-api/internal/services"
)

// Records byte size and pixel dimensions of uploaded report photos.
func main() {
	logger := log.New(os.Stdout, "[ReconcileMedia] ", log.LstdFlags)

	dryRun := flag.Bool("dry-run", false, "Preview changes without writing to the store")
	limit := flag.Int("limit", 500, "Maximum placeholders to process (0 = no limit)")
	flag.Parse()

	if *dryRun {
		logger.Println("DRY RUN - no store writes")
	}

	config.LoadEnvFile()
	cfg := config.FromEnv()
	if err := cfg.ValidateStore(); err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs, err := server.InitStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("init stores: %v", err)
	}
	defer svcs.Close()

	stats, err := services.NewMediaReconciler(svcs.Reports, svcs.Blobs).Run(ctx, *limit, *dryRun)
	if err != nil {
		logger.Fatalf("reconcile: %v", err)
	}

	logger.Printf("Done: updated=%d missing=%d errors=%d", stats.Updated, stats.Missing, stats.Errors)
}
