package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/travigo/departureboard/pkg/util"

	_ "time/tzdata"
)

const (
	DefaultGTFSURL      = "https://www.bluestarbus.co.uk/open-data/download/gtfs-2025-08-11-to-2025-08-31.zip"
	DefaultDataDir      = "data"
	DefaultBODSFeedID   = "7721"
	BODSDatafeedURL     = "https://data.bus-data.dft.gov.uk/api/v1/datafeed/%s/"
	DefaultListen       = ":8080"
	DefaultRedisAddress = "localhost:6379"
)

type Config struct {
	// IANA zone the timetable is written in, the machine's zone when empty
	Timezone string         `yaml:"timezone" validate:"omitempty,timezone"`
	Location *time.Location `yaml:"-"`

	GTFS     GTFS     `yaml:"gtfs"`
	LiveFeed LiveFeed `yaml:"live_feed"`
	Redis    Redis    `yaml:"redis"`
	API      API      `yaml:"api"`
	Routes   Routes   `yaml:"routes"`
}

type GTFS struct {
	URL            string        `yaml:"url" validate:"omitempty,url"`
	DataDir        string        `yaml:"data_dir" validate:"required"`
	ReloadInterval time.Duration `yaml:"reload_interval" validate:"gte=0"`
}

// ArchivePath is where the downloaded GTFS archive is kept
func (g GTFS) ArchivePath() string {
	return strings.TrimRight(g.DataDir, "/") + "/gtfs.zip"
}

type LiveFeed struct {
	BaseURL     string `yaml:"base_url" validate:"omitempty,url"`
	FeedID      string `yaml:"feed_id"`
	APIKey      string `yaml:"api_key"`
	APIKeyParam string `yaml:"api_key_param"`

	TTL     time.Duration `yaml:"ttl" validate:"gt=0"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	// Retries after a failed fetch, 0 disables retrying
	Retries        int           `yaml:"retries" validate:"gte=0,lte=10"`
	VehicleMaxAge  time.Duration `yaml:"vehicle_max_age" validate:"gt=0"`
	CallMaxAge     time.Duration `yaml:"call_max_age" validate:"gte=0"`
	MatchTolerance time.Duration `yaml:"match_tolerance" validate:"gt=0"`

	// Share fetched payloads between instances through redis
	SharedCache bool `yaml:"shared_cache"`
}

type Redis struct {
	Address  string `yaml:"address" validate:"required_if=Enabled true"`
	Password string `yaml:"password"`
	Database int    `yaml:"database" validate:"gte=0"`
	Enabled  bool   `yaml:"enabled"`
}

type API struct {
	ListenAddress string `yaml:"listen_address" validate:"required"`
}

type Routes struct {
	LegacyPrefixes []string `yaml:"legacy_prefixes"`
}

func Defaults() *Config {
	return &Config{
		GTFS: GTFS{
			URL:            DefaultGTFSURL,
			DataDir:        DefaultDataDir,
			ReloadInterval: 24 * time.Hour,
		},
		LiveFeed: LiveFeed{
			FeedID:         DefaultBODSFeedID,
			APIKeyParam:    "api_key",
			TTL:            30 * time.Second,
			Timeout:        10 * time.Second,
			Retries:        1,
			VehicleMaxAge:  20 * time.Minute,
			CallMaxAge:     time.Minute,
			MatchTolerance: 2 * time.Minute,
		},
		Redis: Redis{
			Address: DefaultRedisAddress,
		},
		API: API{
			ListenAddress: DefaultListen,
		},
		Routes: Routes{
			LegacyPrefixes: []string{"HAA"},
		},
	}
}

// Load reads .env, then the YAML file named by TRAVIGO_CONFIG_FILE if set,
// then environment overrides, and validates the result
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env")
	}

	return LoadFromEnvironment(util.GetEnvironmentVariables())
}

func LoadFromEnvironment(env map[string]string) (*Config, error) {
	config := Defaults()

	if path := env["TRAVIGO_CONFIG_FILE"]; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvironment(config, env)

	if config.LiveFeed.BaseURL == "" && config.LiveFeed.FeedID != "" {
		config.LiveFeed.BaseURL = fmt.Sprintf(BODSDatafeedURL, config.LiveFeed.FeedID)
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	config.Location = time.Local
	if config.Timezone != "" {
		location, err := time.LoadLocation(config.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
		config.Location = location
	}

	return config, nil
}

// Unprefixed names are accepted for the settings older deployments used
func applyEnvironment(config *Config, env map[string]string) {
	config.Timezone = util.EnvString(env, "TRAVIGO_TIMEZONE", util.EnvString(env, "TZ", config.Timezone))

	config.GTFS.URL = util.EnvString(env, "TRAVIGO_GTFS_URL", util.EnvString(env, "GTFS_URL", config.GTFS.URL))
	config.GTFS.DataDir = util.EnvString(env, "TRAVIGO_DATA_DIR", util.EnvString(env, "DATA_DIR", config.GTFS.DataDir))
	config.GTFS.ReloadInterval = util.EnvDuration(env, "TRAVIGO_GTFS_RELOAD_INTERVAL", config.GTFS.ReloadInterval)

	live := &config.LiveFeed
	live.BaseURL = util.EnvString(env, "TRAVIGO_BODS_URL", live.BaseURL)
	live.FeedID = util.EnvString(env, "TRAVIGO_BODS_FEED_ID", util.EnvString(env, "BODS_FEED_ID", live.FeedID))
	live.APIKey = util.EnvString(env, "TRAVIGO_BODS_API_KEY", util.EnvString(env, "BODS_API_KEY", live.APIKey))
	live.APIKeyParam = util.EnvString(env, "TRAVIGO_BODS_API_KEY_PARAM", live.APIKeyParam)
	live.TTL = util.EnvDuration(env, "TRAVIGO_LIVE_TTL", live.TTL)
	live.Timeout = util.EnvDuration(env, "TRAVIGO_LIVE_TIMEOUT", live.Timeout)
	live.Retries = util.EnvInt(env, "TRAVIGO_LIVE_RETRIES", live.Retries)
	live.VehicleMaxAge = util.EnvDuration(env, "TRAVIGO_LIVE_VEHICLE_MAX_AGE", live.VehicleMaxAge)
	live.CallMaxAge = util.EnvDuration(env, "TRAVIGO_LIVE_CALL_MAX_AGE", live.CallMaxAge)
	live.MatchTolerance = util.EnvDuration(env, "TRAVIGO_LIVE_MATCH_TOLERANCE", live.MatchTolerance)
	live.SharedCache = util.EnvBool(env, "TRAVIGO_LIVE_SHARED_CACHE", live.SharedCache)

	config.Redis.Address = util.EnvString(env, "TRAVIGO_REDIS_ADDRESS", config.Redis.Address)
	config.Redis.Password = util.EnvString(env, "TRAVIGO_REDIS_PASSWORD", config.Redis.Password)
	config.Redis.Database = util.EnvInt(env, "TRAVIGO_REDIS_DATABASE", config.Redis.Database)
	config.Redis.Enabled = util.EnvBool(env, "TRAVIGO_REDIS_ENABLED", config.Redis.Enabled || live.SharedCache)

	config.API.ListenAddress = util.EnvString(env, "TRAVIGO_API_LISTEN", config.API.ListenAddress)

	if prefixes := util.EnvList(env, "TRAVIGO_ROUTE_LEGACY_PREFIXES"); prefixes != nil {
		config.Routes.LegacyPrefixes = util.RemoveDuplicateStrings(prefixes, nil)
	}
}
