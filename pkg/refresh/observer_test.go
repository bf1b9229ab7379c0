package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-training/gcal-oauth/pkg/core"
	"github.com/go-training/gcal-oauth/pkg/exchange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func quietObserver(opts ...Option) *Observer {
	base := []Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	return NewObserver(append(base, opts...)...)
}

type countingRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *countingRecorder) RefreshObserved(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *countingRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.results...)
}

type sequenceSource struct {
	mu     sync.Mutex
	tokens []*oauth2.Token
	err    error
	calls  int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls
	if i >= len(s.tokens) {
		i = len(s.tokens) - 1
	}
	s.calls++
	return s.tokens[i], nil
}

func TestNotify_NoCallback(t *testing.T) {
	rec := &countingRecorder{}
	o := quietObserver(WithRecorder(rec))
	assert.NotPanics(t, func() { o.Notify(core.TokenSet{AccessToken: "A"}) })
	assert.Equal(t, []string{ResultNoCallback}, rec.all())
}

func TestOnRefresh_ReplacesCallback(t *testing.T) {
	o := quietObserver()
	var first, second []core.TokenSet

	o.OnRefresh(func(ts core.TokenSet) error {
		first = append(first, ts)
		return nil
	})
	o.OnRefresh(func(ts core.TokenSet) error {
		second = append(second, ts)
		return nil
	})

	o.Notify(core.TokenSet{AccessToken: "A", RefreshToken: "R"})
	assert.Empty(t, first)
	require.Len(t, second, 1)
	assert.Equal(t, "A", second[0].AccessToken)

	o.OnRefresh(nil)
	o.Notify(core.TokenSet{AccessToken: "B"})
	assert.Len(t, second, 1)
}

func TestNotify_CallbackFailuresAreContained(t *testing.T) {
	rec := &countingRecorder{}
	o := quietObserver(WithRecorder(rec))

	o.OnRefresh(func(core.TokenSet) error { return errors.New("disk full") })
	assert.NotPanics(t, func() { o.Notify(core.TokenSet{AccessToken: "A"}) })

	o.OnRefresh(func(core.TokenSet) error { panic("boom") })
	assert.NotPanics(t, func() { o.Notify(core.TokenSet{AccessToken: "B"}) })

	assert.Equal(t, []string{ResultCallbackError, ResultCallbackError}, rec.all())
}

func TestTokenSource_NotifiesOncePerNewToken(t *testing.T) {
	o := quietObserver()
	var got []core.TokenSet
	o.OnRefresh(func(ts core.TokenSet) error {
		got = append(got, ts)
		return nil
	})

	base := &sequenceSource{tokens: []*oauth2.Token{
		{AccessToken: "A1", RefreshToken: "R1"},
		{AccessToken: "A2"},
		{AccessToken: "A2"},
		{AccessToken: "A3", RefreshToken: "R3"},
	}}
	src := o.TokenSource(base, core.TokenSet{AccessToken: "A1", RefreshToken: "R1"})

	for range 4 {
		_, err := src.Token()
		require.NoError(t, err)
	}

	require.Len(t, got, 2)
	assert.Equal(t, core.TokenSet{AccessToken: "A2", RefreshToken: "R1"}, got[0])
	assert.Equal(t, core.TokenSet{AccessToken: "A3", RefreshToken: "R3"}, got[1])
}

func TestTokenSource_RefreshError(t *testing.T) {
	rec := &countingRecorder{}
	o := quietObserver(WithRecorder(rec))
	var calls atomic.Int32
	o.OnRefresh(func(core.TokenSet) error {
		calls.Add(1)
		return nil
	})

	src := o.TokenSource(&sequenceSource{err: errors.New("invalid_grant")}, core.TokenSet{AccessToken: "A1"})
	_, err := src.Token()
	assert.Error(t, err)
	assert.Zero(t, calls.Load())
	assert.Equal(t, []string{ResultRefreshError}, rec.all())
}

func TestTokenSource_ConcurrentCallersNotifyOnce(t *testing.T) {
	o := quietObserver()
	var calls atomic.Int32
	o.OnRefresh(func(core.TokenSet) error {
		calls.Add(1)
		return nil
	})

	src := o.TokenSource(&sequenceSource{tokens: []*oauth2.Token{{AccessToken: "A2"}}}, core.TokenSet{AccessToken: "A1"})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = src.Token()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

func TestTokenSource_CallbackDoesNotBlockCachedCallers(t *testing.T) {
	o := quietObserver()
	entered := make(chan struct{})
	release := make(chan struct{})
	o.OnRefresh(func(core.TokenSet) error {
		close(entered)
		<-release
		return nil
	})

	src := o.TokenSource(&sequenceSource{tokens: []*oauth2.Token{{AccessToken: "A2"}}}, core.TokenSet{AccessToken: "A1"})

	refreshed := make(chan error, 1)
	go func() {
		_, err := src.Token()
		refreshed <- err
	}()
	<-entered

	cached := make(chan string, 1)
	go func() {
		tok, err := src.Token()
		if err != nil {
			cached <- ""
			return
		}
		cached <- tok.AccessToken
	}()

	select {
	case got := <-cached:
		assert.Equal(t, "A2", got)
	case <-time.After(5 * time.Second):
		t.Fatal("cached caller waited on the refresh callback")
	}

	close(release)
	require.NoError(t, <-refreshed)
}

func TestTokenSource_StaleNotificationIsDropped(t *testing.T) {
	o := quietObserver()
	var got []string
	o.OnRefresh(func(ts core.TokenSet) error {
		got = append(got, ts.AccessToken)
		return nil
	})

	ns := o.TokenSource(&sequenceSource{tokens: []*oauth2.Token{{AccessToken: "A3"}}}, core.TokenSet{AccessToken: "A1"}).(*notifyingSource)
	// a newer refresh has already been delivered
	ns.notified = 5
	ns.seq = 5

	_, err := ns.Token()
	require.NoError(t, err)
	assert.Equal(t, []string{"A3"}, got)

	ns.mu.Lock()
	ns.last = core.TokenSet{AccessToken: "A1"}
	ns.seq = 1
	ns.mu.Unlock()
	_, err = ns.Token()
	require.NoError(t, err)
	assert.Equal(t, []string{"A3"}, got, "older refresh must not overwrite a newer one")
}

func TestTokenSource_WithProviderRefresh(t *testing.T) {
	var hits atomic.Int32
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "A2",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer provider.Close()

	ex := exchange.New(
		exchange.WithEndpoint(oauth2.Endpoint{TokenURL: provider.URL}),
		exchange.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	creds := core.Credentials{ClientID: "id", ClientSecret: "secret"}
	initial := core.TokenSet{AccessToken: "A1", RefreshToken: "R1", Expiry: time.Now().Add(-time.Minute)}

	o := quietObserver()
	persisted := make(chan core.TokenSet, 1)
	o.OnRefresh(func(ts core.TokenSet) error {
		persisted <- ts
		return nil
	})

	src := o.TokenSource(ex.TokenSource(context.Background(), creds, initial), initial)
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "A2", tok.AccessToken)

	select {
	case ts := <-persisted:
		assert.Equal(t, "A2", ts.AccessToken)
		assert.Equal(t, "R1", ts.RefreshToken)
		assert.False(t, ts.Expiry.IsZero())
	default:
		t.Fatal("refresh was not reported")
	}

	// the refreshed token is still valid, so no further request or notification
	_, err = src.Token()
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
	assert.Empty(t, persisted)
}
