package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/glucohealth/glucohealth/internal/domain/identity"
	"github.com/glucohealth/glucohealth/internal/domain/intake"
	"github.com/glucohealth/glucohealth/internal/domain/treatment"
	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/internal/platform/recurrence"
)

// ErrPatientNotFound is returned when the patient or their treatment does not
// exist.
var ErrPatientNotFound = errors.New("patient or treatment not found")

type PatientReader interface {
	GetPatientTx(ctx context.Context, q db.Querier, id uuid.UUID) (*identity.Patient, error)
}

type TreatmentReader interface {
	GetPatientTreatmentTx(ctx context.Context, q db.Querier, patientID uuid.UUID) (*treatment.Treatment, error)
}

type TakingReader interface {
	ListByPatientAndMedicamentTx(ctx context.Context, q db.Querier, patientID, medicamentID uuid.UUID) ([]*intake.Taking, error)
}

// Service computes daily medication schedules. Nothing is cached; every call
// reads the current treatment and takings.
type Service struct {
	tx         db.Transactor
	patients   PatientReader
	treatments TreatmentReader
	takings    TakingReader
	loc        *time.Location
}

func NewService(tx db.Transactor, patients PatientReader, treatments TreatmentReader, takings TakingReader, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{tx: tx, patients: patients, treatments: treatments, takings: takings, loc: loc}
}

// Location is the reference time zone calendar days are computed in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// BuildSchedule computes the schedule of day for a patient inside its own
// read-only transaction.
func (s *Service) BuildSchedule(ctx context.Context, patientID uuid.UUID, day time.Time) ([]MedicamentSchedule, error) {
	var out []MedicamentSchedule
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		out, err = s.BuildScheduleTx(ctx, q, patientID, day)
		return err
	})
	return out, err
}

// BuildScheduleTx computes the schedule of day on the caller's handle. Every
// medicament of the treatment is present in the result, with an empty
// schedule when no dose falls on day.
func (s *Service) BuildScheduleTx(ctx context.Context, q db.Querier, patientID uuid.UUID, day time.Time) ([]MedicamentSchedule, error) {
	if _, err := s.patients.GetPatientTx(ctx, q, patientID); err != nil {
		if errors.Is(err, identity.ErrPatientNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrPatientNotFound, err)
		}
		return nil, err
	}
	tr, err := s.treatments.GetPatientTreatmentTx(ctx, q, patientID)
	if err != nil {
		if errors.Is(err, treatment.ErrTreatmentNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrPatientNotFound, err)
		}
		return nil, err
	}

	dayStart, dayEnd := DayBounds(day, s.loc)
	out := make([]MedicamentSchedule, 0, len(tr.Medicaments))
	for _, m := range tr.Medicaments {
		expected, err := s.occurrencesOn(m, dayStart, dayEnd)
		if err != nil {
			return nil, fmt.Errorf("treatment %s medicament %s: %w", tr.ID, m.MedicamentID, err)
		}

		entries := make([]Entry, 0, len(expected))
		if len(expected) > 0 {
			takings, err := s.takings.ListByPatientAndMedicamentTx(ctx, q, patientID, m.MedicamentID)
			if err != nil {
				return nil, err
			}
			candidates := make([]time.Time, len(takings))
			for i, t := range takings {
				candidates[i] = t.TakenAt
			}
			for _, e := range expected {
				entries = append(entries, Entry{ExpectedAt: e, ActualAt: FindActualTaking(e, candidates)})
			}
		}
		out = append(out, MedicamentSchedule{MedicamentID: m.MedicamentID, Dose: m.Dose, Schedule: entries})
	}
	return out, nil
}

// occurrencesOn returns the distinct expected instants of m inside
// [dayStart, dayEnd] and its validity window, ascending. The validity end day
// is inclusive.
func (s *Service) occurrencesOn(m treatment.Medicament, dayStart, dayEnd time.Time) ([]time.Time, error) {
	validStart, _ := DayBounds(m.ValidityStart, s.loc)
	if dayEnd.Before(validStart) {
		return nil, nil
	}
	from, to := dayStart, dayEnd
	if validStart.After(from) {
		from = validStart
	}
	if m.ValidityEnd != nil {
		_, validEnd := DayBounds(*m.ValidityEnd, s.loc)
		if dayStart.After(validEnd) {
			return nil, nil
		}
		if validEnd.Before(to) {
			to = validEnd
		}
	}

	seen := make(map[int64]bool)
	var out []time.Time
	for _, rule := range m.TakingSchedules {
		expr, err := recurrence.Parse(rule)
		if err != nil {
			return nil, err
		}
		for _, t := range expr.OccurrencesInRange(from, to) {
			if key := t.UnixNano(); !seen[key] {
				seen[key] = true
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}
