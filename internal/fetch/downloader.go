// Package fetch downloads the raw exchange archive files the pipeline
// consumes.
package fetch

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// legacyCutoff is the last date the exchange published the legacy bulletin
// and the separate delivery report; the consolidated feed replaced both.
var legacyCutoff = time.Date(2024, time.July, 4, 0, 0, 0, 0, time.UTC)

// Feed names one downloadable archive series.
type Feed struct {
	Key    string // also the subdirectory under the data dir
	URLFor func(date time.Time) string
	// ActiveOn reports whether the exchange still published this feed on
	// the given date; nil means always.
	ActiveOn func(date time.Time) bool
}

// Feeds returns the archive series the pipeline knows how to ingest.
func Feeds() []Feed {
	return []Feed{
		{
			Key: "bhav",
			URLFor: func(d time.Time) string {
				return fmt.Sprintf(
					"https://archives.nseindia.com/content/historical/EQUITIES/%d/%s/cm%sbhav.csv.zip",
					d.Year(),
					strings.ToUpper(d.Format("Jan")),
					strings.ToUpper(d.Format("02Jan2006")),
				)
			},
			ActiveOn: func(d time.Time) bool { return !d.After(legacyCutoff) },
		},
		{
			Key: "sec_del",
			URLFor: func(d time.Time) string {
				return "https://archives.nseindia.com/archives/equities/mto/MTO_" + d.Format("02012006") + ".DAT"
			},
			ActiveOn: func(d time.Time) bool { return !d.After(legacyCutoff) },
		},
		{
			Key: "bhav_sec",
			URLFor: func(d time.Time) string {
				return "https://archives.nseindia.com/products/content/sec_bhavdata_full_" + d.Format("02012006") + ".csv"
			},
		},
	}
}

// Stats summarizes one feed's download pass.
type Stats struct {
	Downloaded int
	Skipped    int
	Missed     []time.Time
}

// Downloader fetches archive files into per-feed subdirectories of DataDir.
type Downloader struct {
	DataDir string
	Sleep   time.Duration
	Client  *http.Client
}

// NewDownloader creates a downloader with optional proxy support.
func NewDownloader(dataDir, proxyURL string, sleep time.Duration) *Downloader {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &Downloader{
		DataDir: dataDir,
		Sleep:   sleep,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

// DownloadRange fetches one feed for every trading day in [from, to]. Files
// already on disk are skipped, zip archives are extracted in place, and a
// date the exchange has no file for is recorded, not fatal.
func (d *Downloader) DownloadRange(feed Feed, cal *TradingCalendar, from, to time.Time) (Stats, error) {
	dir := filepath.Join(d.DataDir, feed.Key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stats{}, fmt.Errorf("create %s: %w", dir, err)
	}

	var stats Stats
	for _, day := range cal.TradingDays(from, to) {
		if feed.ActiveOn != nil && !feed.ActiveOn(day) {
			continue
		}
		endpoint := feed.URLFor(day)
		name := endpoint[strings.LastIndex(endpoint, "/")+1:]
		path := filepath.Join(dir, name)

		if _, err := os.Stat(path); err == nil {
			stats.Skipped++
			continue
		}

		if err := d.downloadFile(endpoint, path); err != nil {
			log.Printf("[WARN] [%s] %s: %v", feed.Key, day.Format("2006-01-02"), err)
			stats.Missed = append(stats.Missed, day)
			continue
		}
		stats.Downloaded++

		if strings.HasSuffix(name, ".zip") {
			if err := extractZip(path, dir); err != nil {
				log.Printf("[WARN] [%s] extract %s: %v", feed.Key, name, err)
			}
		}
		time.Sleep(d.Sleep)
	}

	log.Printf("[INFO] [%s] downloaded=%d skipped=%d missed=%d",
		feed.Key, stats.Downloaded, stats.Skipped, len(stats.Missed))
	return stats, nil
}

func (d *Downloader) downloadFile(endpoint, path string) error {
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return err
	}
	// The archive host rejects the default Go user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("save: %w", err)
	}
	return f.Close()
}

// extractZip unpacks a downloaded archive next to it.
func extractZip(path, dir string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, zf := range zr.File {
		name := filepath.Base(zf.Name)
		if name == "" || zf.FileInfo().IsDir() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}
