package treatment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/internal/platform/recurrence"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

type Service struct {
	tx   db.Transactor
	repo Repository
	loc  *time.Location
}

// NewService creates the treatment service. Validity dates are normalised to
// the start of their day in loc.
func NewService(tx db.Transactor, repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{tx: tx, repo: repo, loc: loc}
}

func (s *Service) startOfDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Service) normalize(in Input) (*Treatment, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if len(in.Medicaments) == 0 {
		return nil, fmt.Errorf("%w: at least one medicament is required", ErrInvalidInput)
	}

	t := &Treatment{PatientID: in.PatientID, Medicaments: make([]Medicament, 0, len(in.Medicaments))}
	seen := make(map[uuid.UUID]bool, len(in.Medicaments))
	for i, m := range in.Medicaments {
		if m.MedicamentID == uuid.Nil {
			return nil, fmt.Errorf("%w: medicaments[%d].medicament_id is required", ErrInvalidInput, i)
		}
		if seen[m.MedicamentID] {
			return nil, fmt.Errorf("%w: medicament %s appears more than once", ErrInvalidInput, m.MedicamentID)
		}
		seen[m.MedicamentID] = true

		m.Dose = strings.TrimSpace(m.Dose)
		if m.Dose == "" {
			return nil, fmt.Errorf("%w: medicaments[%d].dose is required", ErrInvalidInput, i)
		}

		schedules := make([]string, 0, len(m.TakingSchedules))
		exprSeen := make(map[string]bool, len(m.TakingSchedules))
		for _, raw := range m.TakingSchedules {
			expr, err := recurrence.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: medicaments[%d]: %w", ErrInvalidInput, i, err)
			}
			if !exprSeen[expr.String()] {
				exprSeen[expr.String()] = true
				schedules = append(schedules, expr.String())
			}
		}
		if len(schedules) == 0 {
			return nil, fmt.Errorf("%w: medicaments[%d] needs at least one taking schedule", ErrInvalidInput, i)
		}
		m.TakingSchedules = schedules

		if m.ValidityStart.IsZero() {
			return nil, fmt.Errorf("%w: medicaments[%d].taking_schedules_starting_timestamp is required", ErrInvalidInput, i)
		}
		m.ValidityStart = s.startOfDay(m.ValidityStart)
		if m.ValidityEnd != nil {
			end := s.startOfDay(*m.ValidityEnd)
			if end.Before(m.ValidityStart) {
				return nil, fmt.Errorf("%w: medicaments[%d] ends before it starts", ErrInvalidInput, i)
			}
			m.ValidityEnd = &end
		}
		t.Medicaments = append(t.Medicaments, m)
	}
	return t, nil
}

func (s *Service) CreateTreatment(ctx context.Context, in Input) (*Treatment, error) {
	t, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	err = s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		return s.repo.Create(ctx, q, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) GetTreatment(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	var t *Treatment
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		t, err = s.repo.GetByID(ctx, q, id)
		return err
	})
	return t, err
}

// GetTreatmentTx reads a treatment on a caller supplied handle.
func (s *Service) GetTreatmentTx(ctx context.Context, q db.Querier, id uuid.UUID) (*Treatment, error) {
	return s.repo.GetByID(ctx, q, id)
}

func (s *Service) GetPatientTreatment(ctx context.Context, patientID uuid.UUID) (*Treatment, error) {
	var t *Treatment
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		t, err = s.repo.GetByPatient(ctx, q, patientID)
		return err
	})
	return t, err
}

// GetPatientTreatmentTx reads a patient's treatment on a caller supplied handle.
func (s *Service) GetPatientTreatmentTx(ctx context.Context, q db.Querier, patientID uuid.UUID) (*Treatment, error) {
	return s.repo.GetByPatient(ctx, q, patientID)
}

func (s *Service) ReplaceTreatment(ctx context.Context, id uuid.UUID, in Input) (*Treatment, error) {
	t, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	t.ID = id
	err = s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		return s.repo.Update(ctx, q, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) DeleteTreatment(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		return s.repo.Delete(ctx, q, id)
	})
}

func (s *Service) ListTreatments(ctx context.Context, f Filter, p pagination.Params) (pagination.Page[*Treatment], error) {
	var items []*Treatment
	var total int
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		items, total, err = s.repo.List(ctx, q, f, p)
		return err
	})
	if err != nil {
		return pagination.Page[*Treatment]{}, err
	}
	return pagination.NewPage(items, total, p), nil
}
