// Package bridge feeds an unmodified legacy schedule consumer by answering
// its requests for the old resource from memory instead of the network.
//
// The interception is an explicit, injectable http.RoundTripper rather than
// a mutation of the process-wide default transport; callers that cannot be
// rebuilt around it may still Install it onto their client once.
package bridge

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"sync"
	"time"

	appLog "schedbridge/internal/log"
)

// DefaultNudgeTimeout is how long the bridge waits for a subscriber to pick
// up a nudge before falling back to a forced consumer reload.
const DefaultNudgeTimeout = 70 * time.Millisecond

// Reloader is the legacy consumer's re-fetch hook, used as the fallback when
// no subscriber reacts to a nudge.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Bridge serves a precomputed legacy payload for any request whose path,
// query string stripped, ends in the legacy resource's file name.
type Bridge struct {
	resource string
	payload  func() []byte

	// NudgeTimeout overrides DefaultNudgeTimeout when positive.
	NudgeTimeout time.Duration

	installMu sync.Mutex
	installed bool

	// reloadOnce guards the forced reload: at most one per process, so a
	// consumer whose Reload re-enters the bridge can never loop.
	reloadOnce sync.Once

	subsMu sync.Mutex
	subs   []chan struct{}
}

// New creates a Bridge for the given resource file name. payload is called
// on every intercepted request so the bridge always serves the current
// snapshot.
func New(resource string, payload func() []byte) *Bridge {
	if resource == "" {
		resource = "schedule.json"
	}
	return &Bridge{resource: resource, payload: payload}
}

// Matches reports whether a request path is answered by the bridge.
func (b *Bridge) Matches(reqPath string) bool {
	return path.Base(reqPath) == b.resource
}

// transport is the intercepting RoundTripper.
type transport struct {
	bridge *Bridge
	base   http.RoundTripper
}

// Transport returns a RoundTripper that answers matching requests from
// memory and forwards everything else to base (http.DefaultTransport when
// nil).
func (b *Bridge) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{bridge: b, base: base}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.bridge.Matches(req.URL.Path) {
		return t.base.RoundTrip(req)
	}

	body := t.bridge.payload()
	appLog.Debug("bridge intercepted request", "url", req.URL.String(), "bytes", len(body))

	header := make(http.Header)
	header.Set("Content-Type", "application/json; charset=utf-8")
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

// Install wraps the client's transport with the bridge, at most once per
// bridge. Returns false when already installed. The interception stays
// active for the client's remaining lifetime and affects every request it
// makes.
func (b *Bridge) Install(client *http.Client) bool {
	b.installMu.Lock()
	defer b.installMu.Unlock()
	if b.installed {
		return false
	}
	client.Transport = b.Transport(client.Transport)
	b.installed = true
	appLog.Info("bridge installed", "resource", b.resource)
	return true
}

// Subscribe returns a channel receiving one notification per nudge.
// Subscribers that keep up count as having reacted, suppressing the forced
// reload.
func (b *Bridge) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	b.subsMu.Lock()
	b.subs = append(b.subs, ch)
	b.subsMu.Unlock()
	return ch
}

// Nudge asynchronously signals the legacy consumer to re-fetch. When no
// subscriber picks the notification up within the nudge timeout, consumer's
// Reload is invoked directly — at most once per process.
func (b *Bridge) Nudge(ctx context.Context, consumer Reloader) {
	go b.nudge(ctx, consumer)
}

func (b *Bridge) nudge(ctx context.Context, consumer Reloader) {
	delivered := false
	b.subsMu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
			delivered = true
		default:
			// Subscriber hasn't consumed the previous nudge.
		}
	}
	b.subsMu.Unlock()

	if delivered {
		return
	}

	timeout := b.NudgeTimeout
	if timeout <= 0 {
		timeout = DefaultNudgeTimeout
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(timeout):
	}

	if consumer == nil {
		return
	}
	b.reloadOnce.Do(func() {
		appLog.Info("bridge nudge unanswered; forcing consumer reload", "resource", b.resource)
		if err := consumer.Reload(ctx); err != nil {
			appLog.Error("forced consumer reload failed", err, "resource", b.resource)
		}
	})
}

// Handler exposes the same synthesized payload over a server-side route, so
// consumers fetching from this process get byte-identical data whether they
// go through the Transport or over HTTP.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := b.payload()
		if body == nil {
			http.Error(w, "schedule not loaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(body)
	})
}
