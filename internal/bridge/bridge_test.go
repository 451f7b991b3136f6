package bridge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type countingReloader struct {
	calls atomic.Int32
}

func (c *countingReloader) Reload(context.Context) error {
	c.calls.Add(1)
	return nil
}

func fetchVia(t *testing.T, client *http.Client, url string) []byte {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return body
}

func TestTransport_InterceptsLegacyResource(t *testing.T) {
	payload := []byte(`{"bookings":[{"id":"X1"}]}`)
	b := New("schedule.json", func() []byte { return payload })

	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatalf("request for %s reached the network", r.URL)
		return nil, nil
	})
	client := &http.Client{Transport: b.Transport(base)}

	// Absolute and relative forms, with and without query strings, all
	// receive the byte-identical synthesized payload.
	got1 := fetchVia(t, client, "http://legacy.test/app/data/schedule.json?x=1")
	got2 := fetchVia(t, client, "http://legacy.test/schedule.json")
	assert.Equal(t, payload, got1)
	assert.Equal(t, got1, got2)
}

func TestTransport_ForwardsOtherRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("passthrough"))
	}))
	defer ts.Close()

	b := New("schedule.json", func() []byte { return []byte("{}") })
	client := &http.Client{Transport: b.Transport(nil)}

	got := fetchVia(t, client, ts.URL+"/other.json")
	assert.Equal(t, []byte("passthrough"), got)
}

func TestInstall_AtMostOnce(t *testing.T) {
	b := New("schedule.json", func() []byte { return nil })
	client := &http.Client{}

	assert.True(t, b.Install(client))
	first := client.Transport
	assert.False(t, b.Install(client))
	assert.Same(t, first, client.Transport)
}

func TestNudge_SubscriberSuppressesForcedReload(t *testing.T) {
	b := New("schedule.json", func() []byte { return nil })
	b.NudgeTimeout = 10 * time.Millisecond

	ch := b.Subscribe()
	var rel countingReloader
	b.Nudge(context.Background(), &rel)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("subscriber never notified")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), rel.calls.Load())
}

func TestNudge_FallsBackToReloadOncePerProcess(t *testing.T) {
	b := New("schedule.json", func() []byte { return nil })
	b.NudgeTimeout = 5 * time.Millisecond

	var rel countingReloader
	b.Nudge(context.Background(), &rel)
	b.Nudge(context.Background(), &rel)

	assert.Eventually(t, func() bool {
		return rel.calls.Load() == 1
	}, time.Second, 10*time.Millisecond)

	// The guard holds: repeated nudges never trigger a second reload.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), rel.calls.Load())
}

func TestHandler_ServesPayloadOr503(t *testing.T) {
	var payload []byte
	b := New("schedule.json", func() []byte { return payload })

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data/schedule.json", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	payload = []byte(`{"bookings":[]}`)
	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data/schedule.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestMatches(t *testing.T) {
	b := New("schedule.json", nil)
	assert.True(t, b.Matches("/schedule.json"))
	assert.True(t, b.Matches("/app/data/schedule.json"))
	assert.False(t, b.Matches("/app/other.json"))
	assert.False(t, b.Matches("/schedule.json.bak"))
}

func TestNudge_ContextCancelSkipsReload(t *testing.T) {
	b := New("schedule.json", nil)
	b.NudgeTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var rel countingReloader
	b.Nudge(ctx, &rel)
	cancel()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), rel.calls.Load())
}
