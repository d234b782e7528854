package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/pawsense/pawsense-backend/internal/app"
)

// Backfills analyses for sessions the worker pool missed, either because the
// analysis service was down at ingest time or because the queue dropped them.
func main() {
	var dryRun bool
	var limit int
	flag.BoolVar(&dryRun, "dry-run", false, "print candidate sessions without analyzing")
	flag.IntVar(&limit, "limit", 0, "limit number of sessions processed")
	flag.Parse()

	_ = godotenv.Load()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()

	rows, err := application.Repos.Session.ListMissingAnalysis(ctx, nil, limit)
	if err != nil {
		fmt.Printf("list sessions: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Println("no sessions missing analysis")
		return
	}

	analyzed := 0
	failed := 0
	for _, s := range rows {
		if dryRun {
			fmt.Printf("would analyze %s (session_id=%s recorded=%s)\n", s.ID, s.SessionID, s.RecordedAt.Format(time.RFC3339))
			continue
		}
		if _, err := application.Services.Analysis.ReTrigger(ctx, s.ID); err != nil {
			fmt.Printf("analyze %s: %v\n", s.ID, err)
			failed++
			continue
		}
		analyzed++
	}
	fmt.Printf("done: %d analyzed, %d failed, %d candidates\n", analyzed, failed, len(rows))
}
