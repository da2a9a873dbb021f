// Package config loads the runtime configuration from flat environment
// variables, all prefixed LOREBOOK_.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lorebook/lorebook/internal/kberr"
)

type Config struct {
	Environment string
	DataDir     string
	DBPath      string
	LogLevel    string

	CacheTTLHours   int
	JanitorSchedule string

	WikipediaEndpoint string
	WikipediaPageBase string
	MoegirlEndpoint   string
	MoegirlPageBase   string
	WikiTimeoutSec    int
	WikiRPS           float64

	WikidataEndpoint   string
	WikidataTimeoutSec int
	WikidataRPS        float64
	WikidataMaxDepth   int

	OneBotURL              string
	OneBotAccessToken      string
	OneBotCallTimeoutSec   int
	OneBotReconnectWaitSec int

	HistoryMaxPages    int
	HistoryMaxFailures int
	HistoryLocalBatch  int

	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMTimeoutSec     int
	LLMTemperature    float64
	DisambiguationOn  bool
	CondensationOn    bool
	LengthThreshold   int
	MaxSearchResults  int
	ExcerptLength     int
	OverridesFilePath string
}

func FromEnv() Config {
	dataDir := stringOrDefault("LOREBOOK_DATA_DIR", "data")
	dbPath := stringOrDefault("LOREBOOK_DB_PATH", filepath.Join(dataDir, "knowledge_cache.sqlite"))

	return Config{
		Environment: stringOrDefault("LOREBOOK_ENV", "development"),
		DataDir:     dataDir,
		DBPath:      dbPath,
		LogLevel:    stringOrDefault("LOREBOOK_LOG_LEVEL", "info"),

		CacheTTLHours:   intOrDefault("LOREBOOK_CACHE_TTL_HOURS", 168),
		JanitorSchedule: stringOrDefault("LOREBOOK_CACHE_SWEEP_SCHEDULE", "@hourly"),

		WikipediaEndpoint: stringOrDefault("LOREBOOK_WIKIPEDIA_API", "https://zh.wikipedia.org/w/api.php"),
		WikipediaPageBase: stringOrDefault("LOREBOOK_WIKIPEDIA_PAGE_BASE", "https://zh.wikipedia.org/?curid="),
		MoegirlEndpoint:   stringOrDefault("LOREBOOK_MOEGIRL_API", "https://zh.moegirl.org.cn/api.php"),
		MoegirlPageBase:   stringOrDefault("LOREBOOK_MOEGIRL_PAGE_BASE", "https://zh.moegirl.org.cn/"),
		WikiTimeoutSec:    intOrDefault("LOREBOOK_WIKI_TIMEOUT_SECONDS", 10),
		WikiRPS:           floatOrDefault("LOREBOOK_WIKI_RPS", 2),

		WikidataEndpoint:   stringOrDefault("LOREBOOK_WIKIDATA_API", "https://www.wikidata.org/w/api.php"),
		WikidataTimeoutSec: intOrDefault("LOREBOOK_WIKIDATA_TIMEOUT_SECONDS", 10),
		WikidataRPS:        floatOrDefault("LOREBOOK_WIKIDATA_RPS", 5),
		WikidataMaxDepth:   intOrDefault("LOREBOOK_WIKIDATA_MAX_DEPTH", 2),

		OneBotURL:              strings.TrimSpace(os.Getenv("LOREBOOK_ONEBOT_WS_URL")),
		OneBotAccessToken:      os.Getenv("LOREBOOK_ONEBOT_ACCESS_TOKEN"),
		OneBotCallTimeoutSec:   intOrDefault("LOREBOOK_ONEBOT_CALL_TIMEOUT_SECONDS", 15),
		OneBotReconnectWaitSec: intOrDefault("LOREBOOK_ONEBOT_RECONNECT_WAIT_SECONDS", 2),

		HistoryMaxPages:    intOrDefault("LOREBOOK_HISTORY_MAX_PAGES", 20),
		HistoryMaxFailures: intOrDefault("LOREBOOK_HISTORY_MAX_FAILURES", 3),
		HistoryLocalBatch:  intOrDefault("LOREBOOK_HISTORY_LOCAL_BATCH", 20),

		LLMBaseURL:        stringOrDefault("LOREBOOK_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:         strings.TrimSpace(os.Getenv("LOREBOOK_LLM_API_KEY")),
		LLMModel:          stringOrDefault("LOREBOOK_LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSec:     intOrDefault("LOREBOOK_LLM_TIMEOUT_SECONDS", 60),
		LLMTemperature:    floatOrDefault("LOREBOOK_LLM_TEMPERATURE", 0.2),
		DisambiguationOn:  boolOrDefault("LOREBOOK_DISAMBIGUATION_ENABLED", true),
		CondensationOn:    boolOrDefault("LOREBOOK_CONDENSATION_ENABLED", true),
		LengthThreshold:   intOrDefault("LOREBOOK_DOC_LENGTH_THRESHOLD", 500),
		MaxSearchResults:  intOrDefault("LOREBOOK_MAX_SEARCH_RESULTS", 5),
		ExcerptLength:     intOrDefault("LOREBOOK_EXCERPT_LENGTH", 500),
		OverridesFilePath: strings.TrimSpace(os.Getenv("LOREBOOK_OVERRIDES_FILE")),
	}
}

// Validate reports the settings a running instance cannot work without. The
// OneBot and LLM settings stay optional: without them the history branch and
// the generative roles are disabled rather than fatal.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: LOREBOOK_DB_PATH is empty", kberr.ErrConfig)
	}
	if c.WikiRPS <= 0 {
		return fmt.Errorf("%w: LOREBOOK_WIKI_RPS must be positive, got %v", kberr.ErrConfig, c.WikiRPS)
	}
	if c.WikidataRPS <= 0 {
		return fmt.Errorf("%w: LOREBOOK_WIKIDATA_RPS must be positive, got %v", kberr.ErrConfig, c.WikidataRPS)
	}
	for name, value := range map[string]string{
		"LOREBOOK_WIKIPEDIA_API": c.WikipediaEndpoint,
		"LOREBOOK_MOEGIRL_API":   c.MoegirlEndpoint,
		"LOREBOOK_WIKIDATA_API":  c.WikidataEndpoint,
	} {
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("%w: %s %q is not an http(s) URL", kberr.ErrConfig, name, value)
		}
	}
	if c.LengthThreshold < 1 {
		return fmt.Errorf("%w: LOREBOOK_DOC_LENGTH_THRESHOLD must be at least 1", kberr.ErrConfig)
	}
	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func floatOrDefault(name string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
