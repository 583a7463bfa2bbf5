package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glucohealth/glucohealth/internal/platform/db"
)

// ErrMarkerStoreUnavailable wraps every marker store failure.
var ErrMarkerStoreUnavailable = errors.New("reminder marker store unavailable")

// Marker records that the reminder for one expected dose was sent.
type Marker struct {
	PatientID    uuid.UUID `json:"patient_id"`
	MedicamentID uuid.UUID `json:"medicament_id"`
	ExpectedAt   time.Time `json:"expected_taking_timestamp"`
	NotifiedAt   time.Time `json:"notified_at"`
}

type markerKey struct {
	medicamentID uuid.UUID
	expectedAt   int64
}

func keyOf(medicamentID uuid.UUID, expectedAt time.Time) markerKey {
	return markerKey{medicamentID: medicamentID, expectedAt: expectedAt.UnixNano()}
}

// MarkerStore persists sent-reminder markers. AppendMarker is idempotent and
// reports whether a new marker was stored.
type MarkerStore interface {
	ListMarkers(ctx context.Context, patientID uuid.UUID) ([]Marker, error)
	AppendMarker(ctx context.Context, m Marker) (bool, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// -- Postgres --

type pgMarkerStore struct {
	q db.Querier
}

// NewPGMarkerStore stores markers in sent_reminders. Every call runs on its
// own on q, outside any schedule snapshot.
func NewPGMarkerStore(q db.Querier) MarkerStore {
	return &pgMarkerStore{q: q}
}

func (s *pgMarkerStore) ListMarkers(ctx context.Context, patientID uuid.UUID) ([]Marker, error) {
	rows, err := s.q.Query(ctx, `
		SELECT patient_id, medicament_id, expected_at, notified_at
		FROM sent_reminders
		WHERE patient_id = $1
		ORDER BY expected_at DESC, medicament_id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: list markers: %v", ErrMarkerStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Marker
	for rows.Next() {
		var m Marker
		if err := rows.Scan(&m.PatientID, &m.MedicamentID, &m.ExpectedAt, &m.NotifiedAt); err != nil {
			return nil, fmt.Errorf("%w: scan marker: %v", ErrMarkerStoreUnavailable, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list markers: %v", ErrMarkerStoreUnavailable, err)
	}
	return out, nil
}

func (s *pgMarkerStore) AppendMarker(ctx context.Context, m Marker) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO sent_reminders (patient_id, medicament_id, expected_at, notified_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id, medicament_id, expected_at) DO NOTHING`,
		m.PatientID, m.MedicamentID, m.ExpectedAt, m.NotifiedAt)
	if err != nil {
		return false, fmt.Errorf("%w: append marker: %v", ErrMarkerStoreUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgMarkerStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM sent_reminders WHERE expected_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune markers: %v", ErrMarkerStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// -- Memory --

// MemoryMarkerStore keeps markers in process. Used in tests and in
// development without a database.
type MemoryMarkerStore struct {
	mu      sync.Mutex
	markers map[uuid.UUID]map[markerKey]Marker
}

func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{markers: make(map[uuid.UUID]map[markerKey]Marker)}
}

func (s *MemoryMarkerStore) ListMarkers(_ context.Context, patientID uuid.UUID) ([]Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Marker, 0, len(s.markers[patientID]))
	for _, m := range s.markers[patientID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpectedAt.After(out[j].ExpectedAt) })
	return out, nil
}

func (s *MemoryMarkerStore) AppendMarker(_ context.Context, m Marker) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPatient, ok := s.markers[m.PatientID]
	if !ok {
		byPatient = make(map[markerKey]Marker)
		s.markers[m.PatientID] = byPatient
	}
	k := keyOf(m.MedicamentID, m.ExpectedAt)
	if _, exists := byPatient[k]; exists {
		return false, nil
	}
	byPatient[k] = m
	return true, nil
}

func (s *MemoryMarkerStore) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for pid, byPatient := range s.markers {
		for k, m := range byPatient {
			if m.ExpectedAt.Before(cutoff) {
				delete(byPatient, k)
				n++
			}
		}
		if len(byPatient) == 0 {
			delete(s.markers, pid)
		}
	}
	return n, nil
}
