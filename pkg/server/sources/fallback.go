package sources

import (
	"context"

	"github.com/StrathCole/marketpulse/pkg/logging"
)

// FallbackProvider tries a primary provider and falls back to a secondary one on failure.
// Both must produce the same fragment kind.
type FallbackProvider struct {
	primary   Provider
	secondary Provider
	logger    *logging.Logger
}

// NewFallbackProvider chains primary and secondary.
func NewFallbackProvider(primary, secondary Provider, logger *logging.Logger) *FallbackProvider {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &FallbackProvider{primary: primary, secondary: secondary, logger: logger}
}

// Name returns the primary provider name
func (p *FallbackProvider) Name() string {
	return p.primary.Name()
}

// Kind returns the fragment kind
func (p *FallbackProvider) Kind() FragmentKind {
	return p.primary.Kind()
}

// Fetch returns the primary fragment, or the secondary one when the primary fails.
// If both fail the primary failure is reported.
func (p *FallbackProvider) Fetch(ctx context.Context, asset string) Fragment {
	frag := p.primary.Fetch(ctx, asset)
	if frag.OK() || ctx.Err() != nil {
		return frag
	}

	alt := p.secondary.Fetch(ctx, asset)
	if !alt.OK() {
		p.logger.Warn("Primary and fallback providers failed",
			"asset", asset,
			"primary", p.primary.Name(),
			"secondary", p.secondary.Name(),
			"error", alt.Err)
		return frag
	}

	p.logger.Info("Using fallback provider",
		"asset", asset,
		"primary", p.primary.Name(),
		"secondary", p.secondary.Name(),
		"cause", frag.Err)
	return alt
}
