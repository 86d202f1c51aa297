package gtfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Archive keeps a downloaded copy of a feed on disk so restarts don't need
// to download it again
type Archive struct {
	Path       string
	Downloader *Downloader
}

func NewArchive(url string, path string) *Archive {
	return &Archive{
		Path:       path,
		Downloader: NewDownloader(url),
	}
}

// Source opens the archive on disk, downloading it first when it's missing
func (a *Archive) Source(ctx context.Context) (Source, error) {
	data, err := os.ReadFile(a.Path)
	if os.IsNotExist(err) {
		return a.Refresh(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("read gtfs archive: %w", err)
	}

	log.Info().Str("path", a.Path).Msg("Using GTFS archive on disk")

	return NewZipSourceFromBytes(data)
}

// Refresh downloads the feed and replaces the copy on disk
func (a *Archive) Refresh(ctx context.Context) (Source, error) {
	if a.Downloader == nil || a.Downloader.URL == "" {
		return nil, fmt.Errorf("no gtfs url to download %s from", a.Path)
	}

	source, data, err := a.Downloader.Download(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create gtfs data dir: %w", err)
	}

	// Written to the side then renamed into place
	temporary := a.Path + ".download"
	if err := os.WriteFile(temporary, data, 0o644); err != nil {
		return nil, fmt.Errorf("write gtfs archive: %w", err)
	}
	if err := os.Rename(temporary, a.Path); err != nil {
		return nil, fmt.Errorf("write gtfs archive: %w", err)
	}

	return source, nil
}
