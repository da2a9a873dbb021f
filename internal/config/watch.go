package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Overrides is the hot-reloadable subset of the configuration. Only the
// retrieval tunables live here; connection settings need a restart.
type Overrides struct {
	LengthThreshold  *int     `json:"length_threshold,omitempty"`
	MaxSearchResults *int     `json:"max_search_results,omitempty"`
	ExcerptLength    *int     `json:"excerpt_length,omitempty"`
	DisambiguationOn *bool    `json:"disambiguation,omitempty"`
	CondensationOn   *bool    `json:"condensation,omitempty"`
	CacheTTLHours    *int     `json:"cache_ttl_hours,omitempty"`
	WikidataMaxDepth *int     `json:"wikidata_max_depth,omitempty"`
	WikiRPS          *float64 `json:"wiki_rps,omitempty"`
}

// Apply returns a copy of the configuration with the overrides folded in.
// Values that fail validation are ignored rather than breaking a running
// instance.
func (o Overrides) Apply(base Config) Config {
	if o.LengthThreshold != nil && *o.LengthThreshold >= 1 {
		base.LengthThreshold = *o.LengthThreshold
	}
	if o.MaxSearchResults != nil && *o.MaxSearchResults >= 1 {
		base.MaxSearchResults = *o.MaxSearchResults
	}
	if o.ExcerptLength != nil && *o.ExcerptLength >= 1 {
		base.ExcerptLength = *o.ExcerptLength
	}
	if o.DisambiguationOn != nil {
		base.DisambiguationOn = *o.DisambiguationOn
	}
	if o.CondensationOn != nil {
		base.CondensationOn = *o.CondensationOn
	}
	if o.CacheTTLHours != nil && *o.CacheTTLHours >= 1 {
		base.CacheTTLHours = *o.CacheTTLHours
	}
	if o.WikidataMaxDepth != nil && *o.WikidataMaxDepth >= 1 {
		base.WikidataMaxDepth = *o.WikidataMaxDepth
	}
	if o.WikiRPS != nil && *o.WikiRPS > 0 {
		base.WikiRPS = *o.WikiRPS
	}
	return base
}

// LoadOverrides reads and decodes the overrides file. A missing file is not
// an error; it simply means no overrides.
func LoadOverrides(path string) (Overrides, error) {
	var overrides Overrides
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return overrides, nil
		}
		return overrides, fmt.Errorf("read overrides file: %w", err)
	}
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return overrides, fmt.Errorf("decode overrides file %s: %w", path, err)
	}
	return overrides, nil
}

// Watch blocks watching the overrides file and calls onApply with a fresh
// decode after every change. The parent directory is watched rather than the
// file itself so editors that replace the file atomically still trigger.
func Watch(ctx context.Context, path string, logger *slog.Logger, onApply func(Overrides)) error {
	if path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	logger.Info("overrides watcher started", "path", path)

	for {
		select {
		case <-ctx.Done():
			logger.Info("overrides watcher stopped")
			return nil
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			overrides, err := LoadOverrides(path)
			if err != nil {
				logger.Error("overrides reload failed", "error", err)
				continue
			}
			logger.Info("overrides reloaded", "op", event.Op.String())
			onApply(overrides)
		case err := <-watcher.Errors:
			if err != nil {
				logger.Error("overrides watcher error", "error", err)
			}
		}
	}
}
