package aggregator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

const (
	mindshareBuckets = 7
	mindshareRecent  = 4
	mindshareDay     = 24 * time.Hour
)

// Engagement weights per interaction type
var (
	weightLike    = decimal.NewFromInt(1)
	weightRepost  = decimal.NewFromInt(2)
	weightReply   = decimal.RequireFromString("1.5")
	weightView    = decimal.RequireFromString("0.1")
	recentBuckets = decimal.NewFromInt(mindshareRecent)
)

// ItemScore is the weighted engagement of one social item
func ItemScore(it sources.SocialItem) decimal.Decimal {
	return decimal.NewFromInt(it.Likes).Mul(weightLike).
		Add(decimal.NewFromInt(it.Reposts).Mul(weightRepost)).
		Add(decimal.NewFromInt(it.Replies).Mul(weightReply)).
		Add(decimal.NewFromInt(it.Views).Mul(weightView))
}

// Mindshare distributes item scores into 7 daily buckets trailing from now (oldest first),
// normalizes them against the busiest bucket and returns the mean of the 4 newest buckets.
// Items without a timestamp are ignored.
func Mindshare(items []sources.SocialItem, now time.Time) (Number, []MindsharePoint) {
	var stamps [mindshareBuckets]time.Time
	var scores [mindshareBuckets]decimal.Decimal
	for i := range stamps {
		stamps[i] = now.Add(-time.Duration(mindshareBuckets-1-i) * mindshareDay)
	}

	for _, it := range items {
		if it.CreatedAt.IsZero() {
			continue
		}
		idx := nearestBucket(stamps[:], it.CreatedAt)
		scores[idx] = scores[idx].Add(ItemScore(it))
	}

	peak := decimal.Zero
	for _, s := range scores {
		if s.GreaterThan(peak) {
			peak = s
		}
	}

	history := make([]MindsharePoint, mindshareBuckets)
	for i := range scores {
		pct := decimal.Zero
		if peak.IsPositive() {
			pct = scores[i].Div(peak).Mul(hundred)
		}
		history[i] = MindsharePoint{At: stamps[i], Value: Some(pct)}
	}

	sum := decimal.Zero
	for _, p := range history[mindshareBuckets-mindshareRecent:] {
		sum = sum.Add(p.Value.Decimal)
	}
	return Some(sum.Div(recentBuckets)), history
}

// nearestBucket returns the index of the stamp closest to t; ties go to the newer bucket
func nearestBucket(stamps []time.Time, t time.Time) int {
	best := len(stamps) - 1
	bestDist := absDuration(t.Sub(stamps[best]))
	for i := len(stamps) - 2; i >= 0; i-- {
		if d := absDuration(t.Sub(stamps[i])); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
