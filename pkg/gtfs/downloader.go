package gtfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Downloader fetches a zipped GTFS feed over HTTP
type Downloader struct {
	URL    string
	Client *http.Client
}

func NewDownloader(url string) *Downloader {
	return &Downloader{
		URL: url,
		Client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (d *Downloader) Download(ctx context.Context) (*ZipSource, []byte, error) {
	start := time.Now()
	log.Info().Str("url", d.URL).Msg("Starting GTFS download")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "curl/7.54.1")

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("download gtfs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("download gtfs: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}

	source, err := NewZipSourceFromBytes(data)
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("size", fmt.Sprintf("%.2fMB", float64(len(data))/(1024*1024))).
		Int("files", len(source.files)).
		Dur("duration", time.Since(start)).
		Msg("GTFS download completed")

	return source, data, nil
}
