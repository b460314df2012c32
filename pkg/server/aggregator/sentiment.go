package aggregator

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

var (
	bullishWords = []string{"bullish", "moon", "buy", "up", "gain"}
	bearishWords = []string{"bearish", "crash", "sell", "down"}
)

// KeywordScore returns the mean keyword polarity of items scaled to [-100, 100].
// An item counts +1 when its text contains a bullish word, otherwise -1 when it contains a bearish one.
func KeywordScore(items []sources.SocialItem) Number {
	if len(items) == 0 {
		return Unavailable
	}
	sum := int64(0)
	for _, it := range items {
		text := strings.ToLower(it.Text)
		switch {
		case containsAny(text, bullishWords):
			sum++
		case containsAny(text, bearishWords):
			sum--
		}
	}
	return Some(decimal.NewFromInt(sum).Div(decimal.NewFromInt(int64(len(items)))).Mul(hundred))
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// TopItems returns up to n items ranked by likes plus reposts, highest first
func TopItems(items []sources.SocialItem, n int) []sources.SocialItem {
	ranked := make([]sources.SocialItem, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Likes+ranked[i].Reposts > ranked[j].Likes+ranked[j].Reposts
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// BuildSentiment summarizes a sentiment payload at now
func BuildSentiment(s *sources.Sentiment, now time.Time, topN int) *SentimentBlock {
	block := &SentimentBlock{
		Query:      s.Query,
		TotalItems: len(s.Items),
		TopItems:   TopItems(s.Items, topN),
	}
	for _, it := range s.Items {
		block.TotalLikes += it.Likes
		block.TotalReposts += it.Reposts
		block.TotalReplies += it.Replies
		block.TotalViews += it.Views
	}

	if n := int64(len(s.Items)); n > 0 {
		count := decimal.NewFromInt(n)
		block.AvgEngagement = Some(decimal.NewFromInt(block.TotalLikes + block.TotalReposts + block.TotalReplies).Div(count))
		block.AvgImpressions = Some(decimal.NewFromInt(block.TotalViews).Div(count))
	}
	block.SentimentScore = KeywordScore(s.Items)
	block.Mindshare, block.MindshareHistory = Mindshare(s.Items, now)
	return block
}
