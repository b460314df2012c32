package social

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

// ArchiveProvider serves the most recent archived search result from a directory
type ArchiveProvider struct {
	*sources.BaseProvider
	dir string
}

// NewArchiveProvider creates the archive sentiment provider
func NewArchiveProvider(config map[string]interface{}) (sources.Provider, error) {
	dir := sources.GetStringFromConfig(config, "dir", "")
	if dir == "" {
		return nil, fmt.Errorf("%w: dir is required", sources.ErrInvalidConfig)
	}
	return &ArchiveProvider{
		BaseProvider: sources.NewBaseProvider("social_archive", sources.KindSentiment, nil, config),
		dir:          filepath.Clean(dir),
	}, nil
}

// Fetch loads the newest archive file, preferring files whose name mentions the asset
func (s *ArchiveProvider) Fetch(ctx context.Context, asset string) sources.Fragment {
	if err := ctx.Err(); err != nil {
		return s.Failed(asset, sources.ErrorKindTimeout, err)
	}

	path, modTime, err := s.latestFile(asset)
	if err != nil {
		return s.Failed(asset, sources.ErrorKindUnreachable, err)
	}

	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from listing the configured archive dir
	if err != nil {
		return s.Failed(asset, sources.ErrorKindUnreachable, err)
	}

	items, err := ParseEntries(raw)
	if err != nil {
		return s.Failed(asset, sources.ErrorKindBadResponse, fmt.Errorf("%s: %w", filepath.Base(path), err))
	}
	if len(items) == 0 {
		return s.Failed(asset, sources.ErrorKindBadResponse, fmt.Errorf("%s: %w", filepath.Base(path), sources.ErrEmptyResult))
	}

	s.Logger().Debug("Loaded archived search result", "asset", asset, "path", path, "items", len(items))

	frag := s.Succeeded(asset)
	frag.FetchedAt = modTime
	frag.Sentiment = &sources.Sentiment{Items: items}
	return frag
}

// latestFile picks the newest *.json file. Files mentioning the lower-cased asset win over others.
func (s *ArchiveProvider) latestFile(asset string) (string, time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", sources.ErrNoArchive, err)
	}

	needle := strings.ToLower(sources.NormalizeAsset(asset))
	var (
		bestPath    string
		bestMod     time.Time
		bestMatches bool
	)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		matches := needle != "" && strings.Contains(strings.ToLower(e.Name()), needle)
		switch {
		case bestPath == "":
		case matches && !bestMatches:
		case matches == bestMatches && info.ModTime().After(bestMod):
		default:
			continue
		}
		bestPath = filepath.Join(s.dir, e.Name())
		bestMod = info.ModTime()
		bestMatches = matches
	}

	if bestPath == "" {
		return "", time.Time{}, fmt.Errorf("%w in %s", sources.ErrNoArchive, s.dir)
	}
	return bestPath, bestMod, nil
}
