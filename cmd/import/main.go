package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/trackr/internal/bootstrap"
	"github.com/timmy/trackr/internal/config"
	"github.com/timmy/trackr/internal/importer"
	"github.com/timmy/trackr/internal/logger"
	"github.com/timmy/trackr/internal/service"
)

func main() {
	campaignID := flag.String("campaign", "", "Campaign ID to import into")
	newCampaign := flag.String("new-campaign", "", "Create a campaign with this name and import into it")
	file := flag.String("file", "", "CSV file to import (default stdin)")
	dryRun := flag.Bool("dry-run", false, "Parse the file and report rows without writing")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	appLogger := bootstrap.NewLogger(&cfg.Log, "trackr-import")
	defer logger.Sync()

	if (*campaignID == "") == (*newCampaign == "") && !*dryRun {
		appLogger.Fatal("Exactly one of -campaign or -new-campaign is required")
	}

	in := os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to open CSV file")
		}
		defer f.Close()
		in = f
	}

	parsed, err := importer.ParseCSV(in)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to parse CSV")
	}
	for _, skipped := range parsed.Skipped {
		appLogger.WithFields(logger.Fields{"line": skipped.Line}).Warnf("Skipping row: %s", skipped.Message)
	}
	if *dryRun {
		appLogger.WithFields(logger.Fields{
			"rows":    len(parsed.Rows),
			"skipped": len(parsed.Skipped),
		}).Info("Dry run completed")
		return
	}

	ctx, cancel := context.WithCancel(appLogger.WithContext(context.Background()))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	stores, err := bootstrap.OpenStores(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	defer stores.Close()

	if *newCampaign != "" {
		campaigns := service.NewCampaignService(stores.Campaigns, stores.Posts, stores.History, nil)
		c, err := campaigns.Create(ctx, service.CampaignInput{Name: *newCampaign})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to create campaign")
		}
		*campaignID = c.ID
	}

	registry := service.NewPostRegistry(stores.Campaigns, stores.Posts, nil)
	result, err := registry.ImportPosts(logger.SetCampaignID(ctx, *campaignID), *campaignID, parsed.Rows)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to import posts")
	}

	for _, e := range result.Errors {
		line := e.Row
		if e.Row >= 1 && e.Row <= len(parsed.Lines) {
			line = parsed.Lines[e.Row-1]
		}
		appLogger.WithFields(logger.Fields{"line": line}).Warnf("Row rejected: %s", e.Message)
	}

	appLogger.WithFields(logger.Fields{
		"campaign_id":  *campaignID,
		"created":      result.Created,
		"placeholders": result.Placeholders,
		"duplicates":   result.Duplicates,
		"failed":       result.Failed + len(parsed.Skipped),
	}).Info("Import completed")
}
