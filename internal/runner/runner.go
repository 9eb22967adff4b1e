// Package runner wires downloading, normalization, consolidation, storage
// and reporting into the operations the CLI and scheduler expose.
package runner

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"BhavEngine/internal/actions"
	"BhavEngine/internal/config"
	"BhavEngine/internal/export"
	"BhavEngine/internal/fetch"
	"BhavEngine/internal/merge"
	"BhavEngine/internal/normalize"
	"BhavEngine/internal/notifier"
	"BhavEngine/internal/pipeline"
	"BhavEngine/internal/store"
)

// Runner owns the long-lived dependencies of a pipeline deployment.
type Runner struct {
	Cfg        *config.Config
	Store      store.Store
	Notifier   notifier.Notifier
	Downloader *fetch.Downloader
	Calendar   *fetch.TradingCalendar
}

// New builds a Runner from config. The store is SQLite when a path is
// configured, noop otherwise; same for the Telegram notifier.
func New(cfg *config.Config) (*Runner, error) {
	var st store.Store = store.NewNoopStore()
	if cfg.Database.SQLitePath != "" {
		s, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		st = s
	}

	var n notifier.Notifier = notifier.NoopNotifier{}
	if cfg.Telegram.BotToken != "" {
		n = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
	}

	return &Runner{
		Cfg:        cfg,
		Store:      st,
		Notifier:   n,
		Downloader: fetch.NewDownloader(cfg.Data.Dir, cfg.Proxy, cfg.Fetch.Sleep),
		Calendar:   fetch.NewTradingCalendar(cfg.Fetch.CalendarMIC),
	}, nil
}

// Close releases the runner's resources.
func (r *Runner) Close() error { return r.Store.Close() }

// Backfill downloads every feed for the date range and consolidates.
func (r *Runner) Backfill(ctx context.Context, from, to time.Time) error {
	if to.Before(from) {
		return fmt.Errorf("backfill: to %s before from %s",
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	if err := r.download(from, to); err != nil {
		return err
	}
	return r.Consolidate(ctx, "Backfill run")
}

// Daily resumes from the day after the newest stored trading date (or the
// last week when the store is empty), downloads through yesterday, and
// consolidates. A failure is reported to the operator channel.
func (r *Runner) Daily(ctx context.Context) error {
	to := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	from := to.AddDate(0, 0, -7)
	if latest, ok, err := r.Store.LatestDate(); err != nil {
		log.Printf("[WARN] latest stored date: %v", err)
	} else if ok {
		from = latest.AddDate(0, 0, 1)
	}
	if to.Before(from) {
		log.Println("[INFO] store already current, nothing to download")
		return nil
	}

	err := r.Backfill(ctx, from, to)
	if err != nil {
		if serr := r.Notifier.SendWithRetry(ctx, notifier.FormatFailure("Daily run", err), 3); serr != nil {
			log.Printf("[ERROR] send notification: %v", serr)
		}
	}
	return err
}

// Consolidate runs merge and adjustment over everything on disk, persists
// the result and reports it. It is a full recompute: prior adjusted output
// is replaced, never folded in.
func (r *Runner) Consolidate(ctx context.Context, title string) error {
	batches, err := r.loadBatches()
	if err != nil {
		return err
	}
	acts, droppedActs, err := actions.LoadActions(r.Cfg.Data.ActionsFile)
	if err != nil {
		return fmt.Errorf("load corporate actions: %w", err)
	}
	if droppedActs > 0 {
		log.Printf("[WARN] dropped %d malformed corporate-action rows", droppedActs)
	}

	res, err := pipeline.Run(batches, acts, pipeline.Options{
		Precedence: r.Cfg.Pipeline.Precedence,
		Workers:    r.Cfg.Pipeline.Workers,
		Symbols:    r.Cfg.Pipeline.Symbols,
	})
	if err != nil {
		return err
	}

	if err := r.Store.UpsertCanonical(res.Canonical); err != nil {
		return fmt.Errorf("persist canonical: %w", err)
	}
	if err := r.Store.UpsertActions(acts); err != nil {
		return fmt.Errorf("persist actions: %w", err)
	}
	if err := r.Store.UpsertAdjusted(res.Adjusted); err != nil {
		return fmt.Errorf("persist adjusted: %w", err)
	}

	if r.Cfg.Export.AdjustedCSV != "" {
		if err := export.WriteAdjustedCSV(r.Cfg.Export.AdjustedCSV, res.Adjusted); err != nil {
			return fmt.Errorf("export adjusted: %w", err)
		}
	}

	if err := r.Notifier.SendWithRetry(ctx, notifier.FormatRunReport(title, &res.Summary), 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
	return nil
}

func (r *Runner) download(from, to time.Time) error {
	for _, feed := range fetch.Feeds() {
		if _, err := r.Downloader.DownloadRange(feed, r.Calendar, from, to); err != nil {
			return fmt.Errorf("download %s: %w", feed.Key, err)
		}
	}
	return nil
}

// loadBatches normalizes every raw feed found under the data dir. A feed
// whose directory is simply empty contributes an empty batch. An ingest
// failure is fatal to that batch only: the pipeline continues with the
// surviving batches, and the run fails only when no batch loads at all.
func (r *Runner) loadBatches() ([]merge.Batch, error) {
	dataDir := r.Cfg.Data.Dir

	var batches []merge.Batch
	var firstErr error
	dropped := 0

	secBatch, d, err := normalize.LoadSecFullBatch(filepath.Join(dataDir, "bhav_sec"))
	if err != nil {
		log.Printf("[ERROR] %v; continuing without this batch", err)
		firstErr = err
	} else {
		dropped += d
		batches = append(batches, secBatch)
	}

	legacyBatch, d, err := normalize.LoadLegacyBatch(
		filepath.Join(dataDir, "bhav"), filepath.Join(dataDir, "sec_del"))
	if err != nil {
		log.Printf("[ERROR] %v; continuing without this batch", err)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		dropped += d
		batches = append(batches, legacyBatch)
	}

	if len(batches) == 0 {
		return nil, fmt.Errorf("no batch could be ingested: %w", firstErr)
	}
	if dropped > 0 {
		log.Printf("[WARN] dropped %d unparseable raw rows during normalization", dropped)
	}
	log.Printf("[INFO] normalized %d consolidated rows, %d legacy rows",
		len(secBatch.Records), len(legacyBatch.Records))
	return batches, nil
}
