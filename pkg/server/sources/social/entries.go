package social

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

// timelineEntry mirrors the nested search timeline shape:
// content.itemContent.tweet_results.result
type timelineEntry struct {
	Content struct {
		ItemContent struct {
			TweetResults struct {
				Result *tweetResult `json:"result"`
			} `json:"tweet_results"`
		} `json:"itemContent"`
	} `json:"content"`
}

type tweetResult struct {
	RestID string       `json:"rest_id"`
	Legacy *tweetLegacy `json:"legacy"`
	Core   struct {
		UserResults struct {
			Result struct {
				Legacy *userLegacy `json:"legacy"`
			} `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
}

type tweetLegacy struct {
	FullText      string    `json:"full_text"`
	CreatedAt     string    `json:"created_at"`
	FavoriteCount flexCount `json:"favorite_count"`
	RetweetCount  flexCount `json:"retweet_count"`
	ReplyCount    flexCount `json:"reply_count"`
	ViewCount     flexCount `json:"view_count"`
}

type userLegacy struct {
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
}

// flexCount accepts counters encoded either as JSON numbers or numeric strings
type flexCount int64

func (c *flexCount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid count %q: %w", s, err)
		}
		n = int64(f)
	}
	*c = flexCount(n)
	return nil
}

// ParseEntries decodes a raw search result into social items.
// Both a flat array of entries and an array of per-query arrays are accepted.
// Entries without a tweet result, legacy block or id are skipped.
func ParseEntries(raw []byte) ([]sources.SocialItem, error) {
	raw = bytes.TrimSpace(raw)
	var groups []json.RawMessage
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("result must be a JSON array: %w", err)
	}

	var entries []timelineEntry
	for i, g := range groups {
		g = bytes.TrimSpace(g)
		if len(g) > 0 && g[0] == '[' {
			var nested []timelineEntry
			if err := json.Unmarshal(g, &nested); err != nil {
				return nil, fmt.Errorf("group %d: %w", i, err)
			}
			entries = append(entries, nested...)
			continue
		}
		var e timelineEntry
		if err := json.Unmarshal(g, &e); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}

	items := make([]sources.SocialItem, 0, len(entries))
	for _, e := range entries {
		if item, ok := e.toItem(); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (e timelineEntry) toItem() (sources.SocialItem, bool) {
	res := e.Content.ItemContent.TweetResults.Result
	if res == nil || res.Legacy == nil || res.RestID == "" {
		return sources.SocialItem{}, false
	}

	item := sources.SocialItem{
		ID:      res.RestID,
		Text:    res.Legacy.FullText,
		Likes:   int64(res.Legacy.FavoriteCount),
		Reposts: int64(res.Legacy.RetweetCount),
		Replies: int64(res.Legacy.ReplyCount),
		Views:   int64(res.Legacy.ViewCount),
	}
	if t, err := time.Parse(time.RubyDate, res.Legacy.CreatedAt); err == nil {
		item.CreatedAt = t.UTC()
	}
	if user := res.Core.UserResults.Result.Legacy; user != nil {
		item.Author = user.Name
		item.Username = user.ScreenName
		if user.ScreenName != "" {
			item.URL = fmt.Sprintf("https://twitter.com/%s/status/%s", user.ScreenName, res.RestID)
		}
	}
	return item, true
}
