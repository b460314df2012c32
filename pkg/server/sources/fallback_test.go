package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) Name() string       { return m.name }
func (m *mockProvider) Kind() FragmentKind { return KindSentiment }

func (m *mockProvider) Fetch(ctx context.Context, asset string) Fragment {
	args := m.Called(ctx, asset)
	return args.Get(0).(Fragment)
}

func sentimentOK(source string) Fragment {
	return Fragment{Kind: KindSentiment, Source: source, Asset: "BTC", Sentiment: &Sentiment{}}
}

func sentimentFailed(source string, kind ErrorKind) Fragment {
	return FailedFragment(KindSentiment, source, "BTC", NewFetchError(source, kind, errors.New("down")))
}

func TestFallbackProvider_PrefersPrimary(t *testing.T) {
	primary := &mockProvider{name: "live"}
	secondary := &mockProvider{name: "archive"}
	primary.On("Fetch", mock.Anything, "BTC").Return(sentimentOK("live"))

	p := NewFallbackProvider(primary, secondary, nil)
	frag := p.Fetch(context.Background(), "BTC")

	assert.True(t, frag.OK())
	assert.Equal(t, "live", frag.Source)
	secondary.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestFallbackProvider_UsesSecondaryOnFailure(t *testing.T) {
	primary := &mockProvider{name: "live"}
	secondary := &mockProvider{name: "archive"}
	primary.On("Fetch", mock.Anything, "BTC").Return(sentimentFailed("live", ErrorKindRateLimited))
	secondary.On("Fetch", mock.Anything, "BTC").Return(sentimentOK("archive"))

	p := NewFallbackProvider(primary, secondary, nil)
	frag := p.Fetch(context.Background(), "BTC")

	assert.True(t, frag.OK())
	assert.Equal(t, "archive", frag.Source)
	assert.Equal(t, "live", p.Name())
	assert.Equal(t, KindSentiment, p.Kind())
}

func TestFallbackProvider_BothFailReportsPrimary(t *testing.T) {
	primary := &mockProvider{name: "live"}
	secondary := &mockProvider{name: "archive"}
	primary.On("Fetch", mock.Anything, "BTC").Return(sentimentFailed("live", ErrorKindTimeout))
	secondary.On("Fetch", mock.Anything, "BTC").Return(sentimentFailed("archive", ErrorKindUnreachable))

	p := NewFallbackProvider(primary, secondary, nil)
	frag := p.Fetch(context.Background(), "BTC")

	assert.False(t, frag.OK())
	assert.ErrorIs(t, frag.Err, ErrTimeout)
}
