package httpclient_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maintboard/maintboard-go/httpclient"
	apperrors "github.com/maintboard/maintboard-go/internal/errors"
	"github.com/maintboard/maintboard-go/storage"
)

// refreshBackend is an httptest handler whose protected endpoint fails
// with 401 until the refresh endpoint has been called.
type refreshBackend struct {
	mux           *http.ServeMux
	refreshCalls  atomic.Int32
	refreshed     atomic.Bool
	refreshStatus int
	refreshDelay  time.Duration
}

func newRefreshBackend(refreshStatus int) *refreshBackend {
	b := &refreshBackend{mux: http.NewServeMux(), refreshStatus: refreshStatus}

	b.mux.HandleFunc("GET /api/workorders/", func(w http.ResponseWriter, r *http.Request) {
		if !b.refreshed.Load() {
			http.Error(w, `{"detail":"expired"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	})
	b.mux.HandleFunc("POST "+httpclient.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		if b.refreshStatus >= 200 && b.refreshStatus < 300 {
			b.refreshed.Store(true)
		}
		if b.refreshDelay > 0 {
			time.Sleep(b.refreshDelay)
		}
		w.WriteHeader(b.refreshStatus)
	})
	return b
}

func (b *refreshBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

func TestRefreshSingleFlight(t *testing.T) {
	backend := newRefreshBackend(http.StatusOK)
	backend.refreshDelay = 100 * time.Millisecond
	f := newClientFixture(t, backend)

	const concurrency = 8
	start := make(chan struct{})
	errs := make([]error, concurrency)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			var out map[string]any
			errs[i] = f.client.Get(context.Background(), "/api/workorders/", &out)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %d should have been replayed after the refresh", i)
	}
	require.EqualValues(t, 1, backend.refreshCalls.Load(),
		"concurrent auth failures must share one refresh call")
	require.True(t, f.sessions.Snapshot().IsAuthenticated,
		"a successful refresh leaves the session intact")
}

func TestRefreshFailureRejectsAllWaiters(t *testing.T) {
	backend := newRefreshBackend(http.StatusInternalServerError)
	backend.refreshDelay = 100 * time.Millisecond
	f := newClientFixture(t, backend)

	// Tenant state that must be purged by the forced clear, plus
	// progress that must survive it.
	f.storage.Set(storage.KeyWorkOrderDraft, storage.WorkOrderDraft{Title: "Fix pump"},
		storage.WithTenant("acme"), storage.WithUser("u-1"))
	f.storage.Set(storage.KeyOnboardingProgress, storage.OnboardingProgress{CompletedSteps: []string{"invite"}},
		storage.WithTenant("acme"), storage.WithUser("u-1"))

	busCh, cancel := f.storage.Bus().Subscribe()
	defer cancel()

	const concurrency = 4
	start := make(chan struct{})
	errs := make([]error, concurrency)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = f.client.Get(context.Background(), "/api/workorders/", nil)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		require.Error(t, err, "request %d", i)
		require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	}
	require.EqualValues(t, 1, backend.refreshCalls.Load())

	require.False(t, f.sessions.Snapshot().IsAuthenticated)

	var draft storage.WorkOrderDraft
	require.False(t, f.storage.Get(storage.KeyWorkOrderDraft, &draft,
		storage.WithTenant("acme"), storage.WithUser("u-1")),
		"the forced clear purges tenant state")
	var onboarding storage.OnboardingProgress
	require.True(t, f.storage.Get(storage.KeyOnboardingProgress, &onboarding,
		storage.WithTenant("acme"), storage.WithUser("u-1")),
		"onboarding progress survives the purge")

	select {
	case ev := <-busCh:
		require.Equal(t, "refresh-failed", ev.Reason)
	case <-time.After(time.Second):
		t.Fatal("no auth-change broadcast after the failed refresh")
	}
}

func TestRefreshNotFoundDisablesRefresh(t *testing.T) {
	backend := newRefreshBackend(http.StatusNotFound)
	f := newClientFixture(t, backend)

	err := f.client.Get(context.Background(), "/api/workorders/", nil)
	require.ErrorIs(t, err, apperrors.ErrRefreshUnavailable)
	require.EqualValues(t, 1, backend.refreshCalls.Load())
	require.False(t, f.sessions.Snapshot().IsAuthenticated)

	// Refresh is now off for this client's lifetime: a later auth
	// failure escalates immediately without touching the endpoint.
	f.sessions.SetSession(testUser, testTenant)
	err = f.client.Get(context.Background(), "/api/workorders/", nil)
	require.True(t, httpclient.IsStatus(err, http.StatusUnauthorized))
	require.EqualValues(t, 1, backend.refreshCalls.Load())
	require.False(t, f.sessions.Snapshot().IsAuthenticated)
}

func TestAuthEndpointsNeverTriggerRefresh(t *testing.T) {
	backend := newRefreshBackend(http.StatusOK)
	backend.mux.HandleFunc("GET /auth/session/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"no session"}`, http.StatusUnauthorized)
	})
	f := newClientFixture(t, backend)

	err := f.client.Get(context.Background(), "/auth/session/", nil)
	require.True(t, httpclient.IsStatus(err, http.StatusUnauthorized))
	require.Zero(t, backend.refreshCalls.Load(),
		"an auth endpoint rejecting the caller must not recurse into refresh")
	require.False(t, f.sessions.Snapshot().IsAuthenticated)
}

func TestReplayedRequestEscalates(t *testing.T) {
	// The protected endpoint keeps answering 401 even after a
	// successful refresh; the client must give up after one replay.
	mux := http.NewServeMux()
	var refreshCalls atomic.Int32
	mux.HandleFunc("GET /api/workorders/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"expired"}`, http.StatusUnauthorized)
	})
	mux.HandleFunc("POST "+httpclient.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	f := newClientFixture(t, mux)

	err := f.client.Get(context.Background(), "/api/workorders/", nil)
	require.True(t, httpclient.IsStatus(err, http.StatusUnauthorized))
	require.EqualValues(t, 1, refreshCalls.Load())
	require.False(t, f.sessions.Snapshot().IsAuthenticated)
}

func TestWaiterCancellationDoesNotAbortRefresh(t *testing.T) {
	backend := newRefreshBackend(http.StatusOK)
	backend.refreshDelay = 200 * time.Millisecond
	f := newClientFixture(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.client.Get(ctx, "/api/workorders/", nil)
	}()

	// Cancel the initiating caller once its auth failure has started
	// the refresh flight.
	require.Eventually(t, func() bool { return backend.refreshCalls.Load() == 1 },
		time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	// The flight itself keeps running and settles the session.
	require.Eventually(t, func() bool { return backend.refreshed.Load() },
		time.Second, 5*time.Millisecond)
	var out map[string]any
	require.NoError(t, f.client.Get(context.Background(), "/api/workorders/", &out))
	require.EqualValues(t, 1, backend.refreshCalls.Load())
}
