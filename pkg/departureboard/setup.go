package departureboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/travigo/departureboard/pkg/config"
	"github.com/travigo/departureboard/pkg/gtfs"
	"github.com/travigo/departureboard/pkg/livefeed"
	"github.com/travigo/departureboard/pkg/merge"
	"github.com/travigo/departureboard/pkg/redis_client"
	"github.com/travigo/departureboard/pkg/timetable"
)

// Setup builds a Core from the config and loads the timetable. An initial
// load that isn't ready is logged and the core starts with an empty
// timetable.
func Setup(ctx context.Context, cfg *config.Config) (*Core, *gtfs.Archive, error) {
	normaliser := merge.NewNormaliser(cfg.Routes.LegacyPrefixes)

	liveConfig := liveFeedConfig(cfg, normaliser)

	if cfg.Redis.Enabled {
		if err := redis_client.Connect(ctx, cfg.Redis); err != nil {
			return nil, nil, err
		}
		if cfg.LiveFeed.SharedCache {
			liveConfig.PayloadCache = livefeed.NewRedisPayloadCache(redis_client.Client, cfg.LiveFeed.TTL)
		}
	}

	live := livefeed.NewClient(liveConfig)
	if !live.Configured() {
		log.Warn().Msg("No live feed API key set, only scheduled departures will be available")
	}

	store := timetable.NewStore(
		timetable.WithLocation(cfg.Location),
		timetable.WithNormaliser(normaliser),
	)
	core := New(store,
		WithLiveFeed(live),
		WithNormaliser(normaliser),
		WithMatchTolerance(cfg.LiveFeed.MatchTolerance),
	)

	archive := gtfs.NewArchive(cfg.GTFS.URL, cfg.GTFS.ArchivePath())

	source, err := archive.Source(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load gtfs: %w", err)
	}

	report := core.Reload(ctx, source)
	if !report.Ready {
		log.Error().Str("error", report.Error).Strs("missing", report.MissingTables).Msg("Timetable not ready")
	} else {
		log.Info().Str("generation", report.Generation).Interface("counts", report.Counts).Msg("Timetable loaded")
	}

	return core, archive, nil
}

func liveFeedConfig(cfg *config.Config, normaliser *merge.Normaliser) livefeed.Config {
	// livefeed treats zero as its default
	retries := cfg.LiveFeed.Retries
	if retries == 0 {
		retries = -1
	}

	return livefeed.Config{
		BaseURL:       cfg.LiveFeed.BaseURL,
		APIKey:        cfg.LiveFeed.APIKey,
		APIKeyParam:   cfg.LiveFeed.APIKeyParam,
		TTL:           cfg.LiveFeed.TTL,
		Timeout:       cfg.LiveFeed.Timeout,
		Retries:       retries,
		VehicleMaxAge: cfg.LiveFeed.VehicleMaxAge,
		CallMaxAge:    cfg.LiveFeed.CallMaxAge,
		Location:      cfg.Location,
		Normaliser:    normaliser,
	}
}

// ReloadEvery reloads the timetable from load every interval until ctx is
// cancelled
func (c *Core) ReloadEvery(ctx context.Context, interval time.Duration, load func(context.Context) (gtfs.Source, error)) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			source, err := load(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Failed to fetch GTFS for scheduled reload")
				continue
			}

			report := c.Reload(ctx, source)
			log.Info().Bool("ready", report.Ready).Str("serving", report.Serving).Msg("Scheduled timetable reload")
		}
	}
}
