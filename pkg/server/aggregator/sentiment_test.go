package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

func TestKeywordScore(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{"all bullish", []string{"Going to the MOON", "time to buy"}, "100"},
		{"all bearish", []string{"market crash", "sell everything"}, "-100"},
		{"bullish wins on both", []string{"sell now or moon later"}, "100"},
		{"neutral counted", []string{"bullish", "nothing here", "bearish", "meh"}, "0"},
		{"mixed", []string{"gain", "gain", "gain", "crash"}, "50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]sources.SocialItem, len(tt.texts))
			for i, text := range tt.texts {
				items[i] = sources.SocialItem{Text: text}
			}
			score := KeywordScore(items)
			require.True(t, score.Valid)
			assert.True(t, score.Decimal.Equal(dec(tt.want)), score.Decimal.String())
		})
	}

	assert.False(t, KeywordScore(nil).Valid)
}

func TestTopItems(t *testing.T) {
	items := []sources.SocialItem{
		{ID: "a", Likes: 1},
		{ID: "b", Likes: 5, Reposts: 5},
		{ID: "c", Likes: 3},
		{ID: "d", Reposts: 3},
	}

	top := TopItems(items, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "b", top[0].ID)
	assert.Equal(t, "c", top[1].ID, "ties keep input order")
	assert.Equal(t, "d", top[2].ID)
	assert.Equal(t, "a", items[0].ID, "input is not reordered")

	assert.Len(t, TopItems(items, 10), 4)
}

func TestItemScore(t *testing.T) {
	score := ItemScore(sources.SocialItem{Likes: 10, Reposts: 5, Replies: 2, Views: 100})
	assert.True(t, score.Equal(dec("33")), score.String())
}

func TestMindshare(t *testing.T) {
	now := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	items := []sources.SocialItem{
		{Likes: 10, CreatedAt: now.Add(-1 * time.Hour)},            // Newest bucket
		{Likes: 20, CreatedAt: now.Add(-24*time.Hour - time.Hour)}, // Second newest
		{Likes: 5, CreatedAt: now.Add(-6 * 24 * time.Hour)},        // Oldest
		{Likes: 99},                                                // No timestamp
	}

	current, history := Mindshare(items, now)
	require.Len(t, history, 7)
	assert.Equal(t, now.Add(-6*24*time.Hour), history[0].At)
	assert.Equal(t, now, history[6].At)

	assert.True(t, history[6].Value.Decimal.Equal(dec("50")))
	assert.True(t, history[5].Value.Decimal.Equal(dec("100")))
	assert.True(t, history[0].Value.Decimal.Equal(dec("25")))
	// (0 + 0 + 100 + 50) / 4
	assert.True(t, current.Decimal.Equal(dec("37.5")), current.Decimal.String())
}

func TestMindshare_NoEngagement(t *testing.T) {
	now := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	current, history := Mindshare([]sources.SocialItem{{CreatedAt: now}}, now)

	require.True(t, current.Valid)
	assert.True(t, current.Decimal.IsZero())
	for _, p := range history {
		assert.True(t, p.Value.Decimal.IsZero())
	}
}

func TestMindshare_TieGoesToNewerBucket(t *testing.T) {
	stamps := []time.Time{
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 1, nearestBucket(stamps, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, nearestBucket(stamps, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)))
}

func TestBuildSentiment(t *testing.T) {
	now := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	block := BuildSentiment(&sources.Sentiment{
		Query: "crypto BTC bitcoin",
		Items: []sources.SocialItem{
			{ID: "1", Text: "bullish", Likes: 4, Reposts: 2, Replies: 2, Views: 100, CreatedAt: now},
			{ID: "2", Text: "crash", Likes: 0, Reposts: 0, Replies: 0, Views: 50, CreatedAt: now},
		},
	}, now, 1)

	assert.Equal(t, 2, block.TotalItems)
	assert.EqualValues(t, 4, block.TotalLikes)
	assert.EqualValues(t, 150, block.TotalViews)
	assert.True(t, block.AvgEngagement.Decimal.Equal(dec("4")))
	assert.True(t, block.AvgImpressions.Decimal.Equal(dec("75")))
	assert.True(t, block.SentimentScore.Decimal.IsZero())
	require.Len(t, block.TopItems, 1)
	assert.Equal(t, "1", block.TopItems[0].ID)

	empty := BuildSentiment(&sources.Sentiment{}, now, 5)
	assert.False(t, empty.AvgEngagement.Valid)
	assert.False(t, empty.SentimentScore.Valid)
	assert.Empty(t, empty.TopItems)
}
