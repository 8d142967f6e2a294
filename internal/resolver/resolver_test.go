package resolver_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quoteproxy/internal/pair"
	"quoteproxy/internal/provider"
	"quoteproxy/internal/provider/cache"
	"quoteproxy/internal/resolver"
)

var eurusd = pair.Pair{Base: "EUR", Quote: "USD"}

// fakeClock is a settable clock for driving the freshness window.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func quote(source string, price float64) provider.Quote {
	return provider.Quote{Source: source, Symbol: "EUR/USD", Price: &price, Raw: []byte(`{"price":1}`)}
}

// mockProvider returns a provider mock that answers Name freely.
func mockProvider(ctrl *gomock.Controller, name string) *MockProvider {
	m := NewMockProvider(ctrl)
	m.EXPECT().Name().Return(name).AnyTimes()
	return m
}

func newResolver(clock *fakeClock, store *cache.Store, providers ...provider.Provider) *resolver.Resolver {
	return resolver.New(resolver.Config{Providers: providers, Cache: store, Clock: clock.Now})
}

func TestResolve_CachedWithinWindow(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := newClock()
	primary := mockProvider(ctrl, "primary")
	primary.EXPECT().Fetch(gomock.Any(), eurusd).Return(quote("primary", 1.08), nil).Times(1)

	r := newResolver(clock, cache.NewStore(5*time.Second, 0), primary)

	first, err := r.Resolve(t.Context(), eurusd)
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Len(t, first.Attempts, 1)

	clock.Advance(4 * time.Second)
	second, err := r.Resolve(t.Context(), eurusd)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, *first.Quote.Price, *second.Quote.Price)
	require.Equal(t, first.Timestamp, second.Timestamp, "cached reply keeps the original fetch time")
	require.Empty(t, second.Attempts)
}

func TestResolve_RefreshesAfterWindow(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := newClock()
	primary := mockProvider(ctrl, "primary")
	gomock.InOrder(
		primary.EXPECT().Fetch(gomock.Any(), eurusd).Return(quote("primary", 1.08), nil),
		primary.EXPECT().Fetch(gomock.Any(), eurusd).Return(quote("primary", 1.09), nil),
	)
	store := cache.NewStore(5*time.Second, 0)
	r := newResolver(clock, store, primary)

	_, err := r.Resolve(t.Context(), eurusd)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	res, err := r.Resolve(t.Context(), eurusd)
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, 1.09, *res.Quote.Price)
	require.Equal(t, clock.Now(), res.FetchedAt)

	e, ok := store.Peek("EUR/USD")
	require.True(t, ok)
	require.Equal(t, 1.09, *e.Quote.Price)
}

func TestResolve_FallbackAfterPrimary503(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := newClock()
	primary := mockProvider(ctrl, "primary")
	fallback := mockProvider(ctrl, "fallback")

	primary.EXPECT().Fetch(gomock.Any(), eurusd).
		Return(provider.Quote{}, &provider.Error{Provider: "primary", Kind: provider.KindStatus, StatusCode: http.StatusServiceUnavailable}).
		Times(1)
	fallback.EXPECT().Fetch(gomock.Any(), eurusd).Return(quote("fallback", 1.07), nil).Times(1)

	r := newResolver(clock, cache.NewStore(5*time.Second, 0), primary, fallback)
	res, err := r.Resolve(t.Context(), eurusd)
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, "fallback", res.Quote.Source)
	require.Len(t, res.Attempts, 2)
	require.False(t, res.Attempts[0].OK())
	require.True(t, res.Attempts[1].OK())
}

func TestResolve_BothFailPreservesCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := newClock()
	primary := mockProvider(ctrl, "primary")
	fallback := mockProvider(ctrl, "fallback")
	store := cache.NewStore(5*time.Second, 0)

	t0 := clock.Now()
	store.Set("EUR/USD", quote("primary", 1.05), t0.Add(-10*time.Second))

	primary.EXPECT().Fetch(gomock.Any(), eurusd).
		Return(provider.Quote{}, &provider.Error{Provider: "primary", Kind: provider.KindStatus, StatusCode: 503}).Times(1)
	fallback.EXPECT().Fetch(gomock.Any(), eurusd).
		Return(provider.Quote{}, &provider.Error{Provider: "fallback", Kind: provider.KindPayload, Message: "unsupported-code"}).Times(1)

	r := newResolver(clock, store, primary, fallback)
	_, err := r.Resolve(t.Context(), eurusd)

	var ex *resolver.ExhaustedError
	require.True(t, errors.As(err, &ex))
	require.Len(t, ex.Results, 2)
	require.Equal(t, "primary", ex.Results[0].Source)
	require.Equal(t, "fallback", ex.Last().Source)
	require.False(t, ex.TransportOnly())

	e, ok := store.Peek("EUR/USD")
	require.True(t, ok)
	require.Equal(t, 1.05, *e.Quote.Price)
	_, ok = store.Get("EUR/USD", t0.Add(-9*time.Second))
	require.True(t, ok, "old entry still fresh inside its own window")
}

func TestResolve_ConfigErrorAbortsChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mockProvider(ctrl, "twelvedata")
	fallback := mockProvider(ctrl, "fallback")
	primary.EXPECT().Fetch(gomock.Any(), eurusd).Return(provider.Quote{}, provider.ConfigError("twelvedata", "Missing TWELVEDATA_API_KEY env var")).Times(1)
	fallback.EXPECT().Fetch(gomock.Any(), gomock.Any()).Times(0)

	r := newResolver(newClock(), cache.NewStore(5*time.Second, 0), primary, fallback)
	_, err := r.Resolve(t.Context(), eurusd)
	require.True(t, provider.IsKind(err, provider.KindConfig))
}

func TestResolve_UnsupportedPair(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mockProvider(ctrl, "primary")
	primary.EXPECT().Fetch(gomock.Any(), gomock.Any()).Times(0)

	set, err := pair.NewSet([]string{"EUR/USD"})
	require.NoError(t, err)
	r := resolver.New(resolver.Config{Providers: []provider.Provider{primary}, SupportedPairs: set})

	_, err = r.Resolve(t.Context(), pair.Pair{Base: "GBP", Quote: "JPY"})
	require.ErrorIs(t, err, pair.ErrUnsupported)
}

func TestResolve_NoProviders(t *testing.T) {
	_, err := resolver.New(resolver.Config{}).Resolve(t.Context(), eurusd)
	require.ErrorIs(t, err, resolver.ErrNoProviders)
}

func TestResolve_NoCacheCallsEveryTime(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mockProvider(ctrl, "twelvedata")
	primary.EXPECT().Fetch(gomock.Any(), eurusd).Return(quote("twelvedata", 1.1), nil).Times(2)

	r := newResolver(newClock(), nil, primary)
	for i := 0; i < 2; i++ {
		res, err := r.Resolve(t.Context(), eurusd)
		require.NoError(t, err)
		require.False(t, res.Cached)
	}
}

func TestResolve_TransportOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mockProvider(ctrl, "twelvedata")
	primary.EXPECT().Fetch(gomock.Any(), eurusd).
		Return(provider.Quote{}, &provider.Error{Provider: "twelvedata", Kind: provider.KindTransport, Message: "dial tcp: refused"}).Times(1)

	_, err := newResolver(newClock(), nil, primary).Resolve(t.Context(), eurusd)
	var ex *resolver.ExhaustedError
	require.True(t, errors.As(err, &ex))
	require.True(t, ex.TransportOnly())
	require.Contains(t, ex.Error(), "dial tcp")
}

func TestResolve_ProviderTimestampTrust(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := newClock()
	providerTime := clock.Now().Add(-time.Minute)
	q := quote("twelvedata", 1.1)
	q.ProviderTime = providerTime

	primary := mockProvider(ctrl, "twelvedata")
	primary.EXPECT().Fetch(gomock.Any(), eurusd).Return(q, nil).Times(2)

	local := resolver.New(resolver.Config{Providers: []provider.Provider{primary}, Clock: clock.Now})
	res, err := local.Resolve(t.Context(), eurusd)
	require.NoError(t, err)
	require.Equal(t, clock.Now(), res.Timestamp)

	trusted := resolver.New(resolver.Config{Providers: []provider.Provider{primary}, Clock: clock.Now, TrustProviderTimestamp: true})
	res, err = trusted.Resolve(t.Context(), eurusd)
	require.NoError(t, err)
	require.Equal(t, providerTime, res.Timestamp)
	require.Equal(t, clock.Now(), res.FetchedAt)
}

func TestResolve_ConcurrentMissesCallUpstreamOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := newClock()
	primary := mockProvider(ctrl, "primary")
	primary.EXPECT().Fetch(gomock.Any(), eurusd).
		DoAndReturn(func(ctx context.Context, _ pair.Pair) (provider.Quote, error) {
			time.Sleep(20 * time.Millisecond)
			return quote("primary", 1.08), nil
		}).
		Times(1)

	r := newResolver(clock, cache.NewStore(5*time.Second, 0), primary)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), eurusd)
			if err != nil || res.Quote.Price == nil || *res.Quote.Price != 1.08 {
				t.Errorf("unexpected resolution: %+v err=%v", res, err)
			}
		}()
	}
	wg.Wait()
}

func TestResolve_StalledPrimaryLeavesFallbackItsOwnDeadline(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mockProvider(ctrl, "primary")
	primary.EXPECT().Fetch(gomock.Any(), eurusd).
		DoAndReturn(func(ctx context.Context, _ pair.Pair) (provider.Quote, error) {
			<-ctx.Done()
			return provider.Quote{}, &provider.Error{Provider: "primary", Kind: provider.KindTransport, Err: ctx.Err()}
		}).
		Times(1)
	fallback := mockProvider(ctrl, "fallback")
	fallback.EXPECT().Fetch(gomock.Any(), eurusd).
		DoAndReturn(func(ctx context.Context, _ pair.Pair) (provider.Quote, error) {
			if err := ctx.Err(); err != nil {
				return provider.Quote{}, &provider.Error{Provider: "fallback", Kind: provider.KindTransport, Err: err}
			}
			return quote("fallback", 1.07), nil
		}).
		Times(1)

	r := resolver.New(resolver.Config{
		Providers:      []provider.Provider{primary, fallback},
		Clock:          newClock().Now,
		AttemptTimeout: 50 * time.Millisecond,
	})

	res, err := r.Resolve(t.Context(), eurusd)
	require.NoError(t, err)
	require.Equal(t, "fallback", res.Quote.Source)
	require.Len(t, res.Attempts, 2)
	require.ErrorIs(t, res.Attempts[0].Err, context.DeadlineExceeded)
}

func TestResolve_CallerCancellationDoesNotFailSharedLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	primary := mockProvider(ctrl, "primary")
	primary.EXPECT().Fetch(gomock.Any(), eurusd).
		DoAndReturn(func(ctx context.Context, _ pair.Pair) (provider.Quote, error) {
			close(entered)
			<-release
			if err := ctx.Err(); err != nil {
				return provider.Quote{}, &provider.Error{Provider: "primary", Kind: provider.KindTransport, Err: err}
			}
			return quote("primary", 1.08), nil
		}).
		Times(1)

	r := newResolver(newClock(), cache.NewStore(5*time.Second, 0), primary)

	// Arrange: the first caller starts the lookup, a second one joins it
	firstCtx, cancelFirst := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx, eurusd)
		firstErr <- err
	}()
	<-entered

	type outcome struct {
		res resolver.Resolution
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := r.Resolve(context.Background(), eurusd)
		second <- outcome{res, err}
	}()
	time.Sleep(10 * time.Millisecond)

	// Act: the first caller goes away before the provider answers
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	// Assert
	got := <-second
	require.NoError(t, got.err)
	require.Equal(t, 1.08, *got.res.Quote.Price)

	res, err := r.Resolve(t.Context(), eurusd)
	require.NoError(t, err)
	require.True(t, res.Cached, "abandoned lookup still fills the cache")
}
