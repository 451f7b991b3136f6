package schedule

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	appLog "schedbridge/internal/log"
	"schedbridge/internal/model"
)

// LegacyDocument is the envelope of the synthesized legacy payload. Some
// deployments serve a bare row array instead; those marshal Bookings
// directly.
type LegacyDocument struct {
	Bookings  []LegacyRow `json:"bookings"`
	UpdatedAt string      `json:"updated_at,omitempty"`
}

// Snapshot is one fully-built generation of schedule data. The model, the
// expanded rows and the legacy payload are all rebuilt from scratch on every
// load; nothing is persisted or mutated in place.
type Snapshot struct {
	Model    *model.Model
	Rows     []model.ViewRow
	Payload  []byte // marshalled LegacyDocument
	Path     string // candidate path the document came from
	LoadedAt time.Time
}

// Store owns the current snapshot and rebuilds it on demand. Reads are
// cheap and concurrent; Reload swaps the snapshot atomically, keeping the
// previous generation visible while a reload is in flight or after a failed
// one.
type Store struct {
	fetcher    *Fetcher
	normalizer *Normalizer
	converter  *RecurrenceConverter

	base     string
	resource string

	mu      sync.RWMutex
	snap    *Snapshot
	lastErr error
}

// NewStore wires the pipeline stages together for the given source.
func NewStore(base, resource string, normalizer *Normalizer, converter *RecurrenceConverter) *Store {
	if normalizer == nil {
		normalizer = NewNormalizer()
	}
	if converter == nil {
		converter = NewRecurrenceConverter(nil)
	}
	return &Store{
		fetcher:    NewFetcher(),
		normalizer: normalizer,
		converter:  converter,
		base:       base,
		resource:   resource,
	}
}

// Reload fetches the document, rebuilds the snapshot and swaps it in. On
// failure the previous snapshot stays visible and the error is recorded.
func (s *Store) Reload(ctx context.Context) error {
	res, err := s.fetcher.Fetch(ctx, s.base, s.resource)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	snap, err := s.Build(res.Body)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}
	snap.Path = res.Path

	s.mu.Lock()
	s.snap = snap
	s.lastErr = nil
	s.mu.Unlock()

	appLog.Info("schedule reloaded",
		"path", res.Path,
		"bookings", len(snap.Model.Bookings),
		"rows", len(snap.Rows),
		"payload_bytes", len(snap.Payload),
	)
	return nil
}

// Build runs normalize → expand → convert over raw document bytes without
// touching the store. Reload uses it; tests and the -once path can call it
// directly.
func (s *Store) Build(raw []byte) (*Snapshot, error) {
	m, err := s.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}

	rows := ExpandRows(m.Bookings)
	doc := LegacyDocument{
		Bookings:  s.converter.BuildLegacyRows(rows),
		UpdatedAt: m.UpdatedAt,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Model:    m,
		Rows:     rows,
		Payload:  payload,
		LoadedAt: time.Now(),
	}, nil
}

// Snapshot returns the current generation, or nil when no load has
// succeeded yet.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// LastErr returns the most recent load error, nil after a successful
// reload.
func (s *Store) LastErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// LegacyPayload returns the current synthesized legacy document bytes, or
// nil when no load has succeeded yet. The bytes are shared; callers must
// not modify them.
func (s *Store) LegacyPayload() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil
	}
	return s.snap.Payload
}
