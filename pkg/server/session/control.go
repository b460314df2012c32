package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

const typeRequestSentiment = "request_sentiment"

// Control is a parsed inbound reconfiguration
type Control struct {
	Symbols          []string // Nil when absent
	Interval         time.Duration
	HasInterval      bool
	RequestSentiment bool
}

// Empty reports whether the message carries nothing to apply
func (c Control) Empty() bool {
	return c.Symbols == nil && !c.HasInterval && !c.RequestSentiment
}

type rawControl struct {
	Type     string          `json:"type"`
	Symbols  json.RawMessage `json:"symbols"`
	Interval json.RawMessage `json:"interval"`
}

// ParseControl decodes a control message. Symbols are normalized and filtered to tracked
// assets; the interval is whole seconds clamped to [min, max]. Any invalid field rejects the
// whole message so a reconfiguration is applied entirely or not at all.
func ParseControl(data []byte, tracked map[string]struct{}, minInterval, maxInterval time.Duration) (Control, error) {
	var raw rawControl
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Control{}, fmt.Errorf("%w: %v", ErrMalformedControl, err)
	}

	var ctl Control
	ctl.RequestSentiment = raw.Type == typeRequestSentiment

	if len(raw.Symbols) > 0 && !isNull(raw.Symbols) {
		var symbols []string
		if err := json.Unmarshal(raw.Symbols, &symbols); err != nil {
			return Control{}, fmt.Errorf("%w: symbols: %v", ErrMalformedControl, err)
		}
		accepted := make([]string, 0, len(symbols))
		for _, s := range sources.NormalizeAssets(symbols) {
			if _, ok := tracked[s]; ok {
				accepted = append(accepted, s)
			}
		}
		if len(accepted) == 0 {
			return Control{}, fmt.Errorf("%w: no tracked symbols in %v", ErrMalformedControl, symbols)
		}
		ctl.Symbols = accepted
	}

	if len(raw.Interval) > 0 && !isNull(raw.Interval) {
		var n json.Number
		if err := json.Unmarshal(raw.Interval, &n); err != nil {
			return Control{}, fmt.Errorf("%w: interval: %v", ErrMalformedControl, err)
		}
		secs, err := n.Int64()
		if err != nil {
			return Control{}, fmt.Errorf("%w: interval %q is not whole seconds", ErrMalformedControl, n)
		}
		if limit := int64(maxInterval / time.Second); secs > limit {
			secs = limit
		}
		if secs < 0 {
			secs = 0
		}
		ctl.Interval = Clamp(time.Duration(secs)*time.Second, minInterval, maxInterval)
		ctl.HasInterval = true
	}

	return ctl, nil
}

// Clamp bounds d to [lo, hi]
func Clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
