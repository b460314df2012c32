package social

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

const (
	defaultTokenEnv    = "SOCIAL_API_TOKEN"
	defaultSearchLimit = 100
	archiveFilePerm    = 0o600
	archiveDirPerm     = 0o750
)

// SearchProvider queries a live social search endpoint for posts about an asset
type SearchProvider struct {
	*sources.BaseProvider
	apiURL     string
	tokenEnv   string
	limit      int
	queries    map[string]string
	archiveDir string
}

// NewSearchProvider creates the live sentiment provider.
// The bearer token is read from the environment variable named by token_env on every request.
func NewSearchProvider(config map[string]interface{}) (sources.Provider, error) {
	apiURL := sources.GetStringFromConfig(config, "api_url", "")
	if apiURL == "" {
		return nil, fmt.Errorf("%w: api_url is required", sources.ErrInvalidConfig)
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("%w: api_url: %v", sources.ErrInvalidConfig, err)
	}

	return &SearchProvider{
		BaseProvider: sources.NewBaseProvider("social_search", sources.KindSentiment, nil, config),
		apiURL:       apiURL,
		tokenEnv:     sources.GetStringFromConfig(config, "token_env", defaultTokenEnv),
		limit:        sources.GetIntFromConfig(config, "limit", defaultSearchLimit),
		queries:      sources.ParseStringMap(config, "queries"),
		archiveDir:   sources.GetStringFromConfig(config, "archive_dir", ""),
	}, nil
}

// Fetch searches for posts about asset
func (s *SearchProvider) Fetch(ctx context.Context, asset string) sources.Fragment {
	query := s.queryFor(asset)

	u, err := url.Parse(s.apiURL)
	if err != nil {
		return s.Failed(asset, sources.ErrorKindBadResponse, err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", fmt.Sprintf("%d", s.limit))
	u.RawQuery = q.Encode()

	var headers map[string]string
	if token := os.Getenv(s.tokenEnv); token != "" {
		headers = map[string]string{"Authorization": "Bearer " + token}
	}

	body, fe := s.Get(ctx, u.String(), headers)
	if fe != nil {
		return s.FailedWith(asset, fe)
	}

	items, err := ParseEntries(body)
	if err != nil {
		return s.Failed(asset, sources.ErrorKindBadResponse, err)
	}
	if len(items) == 0 {
		return s.Failed(asset, sources.ErrorKindBadResponse, sources.ErrEmptyResult)
	}

	if s.archiveDir != "" {
		if path, err := s.archive(asset, body); err != nil {
			s.Logger().Warn("Failed to archive search result", "asset", asset, "error", err)
		} else {
			s.Logger().Debug("Archived search result", "asset", asset, "path", path)
		}
	}

	frag := s.Succeeded(asset)
	frag.Sentiment = &sources.Sentiment{Query: query, Items: items}
	return frag
}

func (s *SearchProvider) queryFor(asset string) string {
	if q, ok := s.queries[sources.NormalizeAsset(asset)]; ok && q != "" {
		return q
	}
	return "crypto " + sources.NormalizeAsset(asset)
}

// archive writes the raw result so the archive provider can serve it later
func (s *SearchProvider) archive(asset string, body []byte) (string, error) {
	if err := os.MkdirAll(s.archiveDir, archiveDirPerm); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.json", strings.ToLower(sources.NormalizeAsset(asset)), time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(s.archiveDir, name)
	if err := os.WriteFile(path, body, archiveFilePerm); err != nil {
		return "", err
	}
	return path, nil
}
