package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/glucohealth/glucohealth/internal/domain/treatment"
	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

// TreatmentReader resolves the treatment a taking refers to.
type TreatmentReader interface {
	GetTreatmentTx(ctx context.Context, q db.Querier, id uuid.UUID) (*treatment.Treatment, error)
	GetPatientTreatmentTx(ctx context.Context, q db.Querier, patientID uuid.UUID) (*treatment.Treatment, error)
}

type Service struct {
	tx         db.Transactor
	repo       Repository
	treatments TreatmentReader
}

func NewService(tx db.Transactor, repo Repository, treatments TreatmentReader) *Service {
	return &Service{tx: tx, repo: repo, treatments: treatments}
}

// resolve validates in against the stored treatment. A patient's own request
// may omit treatment_id; their current treatment is used.
func (s *Service) resolve(ctx context.Context, q db.Querier, in Input) (*Taking, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if in.MedicamentID == uuid.Nil {
		return nil, fmt.Errorf("%w: medicament_id is required", ErrInvalidInput)
	}
	if in.TakenAt.IsZero() {
		return nil, fmt.Errorf("%w: taking_timestamp is required", ErrInvalidInput)
	}

	var (
		tr  *treatment.Treatment
		err error
	)
	if in.TreatmentID == uuid.Nil {
		tr, err = s.treatments.GetPatientTreatmentTx(ctx, q, in.PatientID)
	} else {
		tr, err = s.treatments.GetTreatmentTx(ctx, q, in.TreatmentID)
	}
	if errors.Is(err, treatment.ErrTreatmentNotFound) {
		return nil, fmt.Errorf("%w: treatment not found", ErrInvalidInput)
	}
	if err != nil {
		return nil, err
	}
	if tr.PatientID != in.PatientID {
		return nil, fmt.Errorf("%w: treatment does not belong to the patient", ErrInvalidInput)
	}
	if tr.Medicament(in.MedicamentID) == nil {
		return nil, fmt.Errorf("%w: medicament is not part of the treatment", ErrInvalidInput)
	}
	return &Taking{
		PatientID:    in.PatientID,
		TreatmentID:  tr.ID,
		MedicamentID: in.MedicamentID,
		TakenAt:      in.TakenAt,
	}, nil
}

// owned loads a taking and hides it from anyone but its patient when owner is
// set.
func (s *Service) owned(ctx context.Context, q db.Querier, owner, id uuid.UUID) (*Taking, error) {
	t, err := s.repo.GetByID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if owner != uuid.Nil && t.PatientID != owner {
		return nil, ErrTakingNotFound
	}
	return t, nil
}

func (s *Service) create(ctx context.Context, in Input) (*Taking, error) {
	var t *Taking
	err := s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		var err error
		if t, err = s.resolve(ctx, q, in); err != nil {
			return err
		}
		return s.repo.Create(ctx, q, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) get(ctx context.Context, owner, id uuid.UUID) (*Taking, error) {
	var t *Taking
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		t, err = s.owned(ctx, q, owner, id)
		return err
	})
	return t, err
}

func (s *Service) replace(ctx context.Context, owner, id uuid.UUID, in Input) (*Taking, error) {
	var t *Taking
	err := s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		if _, err := s.owned(ctx, q, owner, id); err != nil {
			return err
		}
		var err error
		if t, err = s.resolve(ctx, q, in); err != nil {
			return err
		}
		t.ID = id
		return s.repo.Update(ctx, q, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) delete(ctx context.Context, owner, id uuid.UUID) error {
	return s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		if _, err := s.owned(ctx, q, owner, id); err != nil {
			return err
		}
		return s.repo.Delete(ctx, q, id)
	})
}

// -- Staff --

func (s *Service) CreateTaking(ctx context.Context, in Input) (*Taking, error) {
	return s.create(ctx, in)
}

func (s *Service) GetTaking(ctx context.Context, id uuid.UUID) (*Taking, error) {
	return s.get(ctx, uuid.Nil, id)
}

func (s *Service) ReplaceTaking(ctx context.Context, id uuid.UUID, in Input) (*Taking, error) {
	return s.replace(ctx, uuid.Nil, id, in)
}

func (s *Service) DeleteTaking(ctx context.Context, id uuid.UUID) error {
	return s.delete(ctx, uuid.Nil, id)
}

func (s *Service) ListTakings(ctx context.Context, f Filter, p pagination.Params) (pagination.Page[*Taking], error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return pagination.Page[*Taking]{}, fmt.Errorf("%w: to is before from", ErrInvalidInput)
	}
	var items []*Taking
	var total int
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		items, total, err = s.repo.List(ctx, q, f, p)
		return err
	})
	if err != nil {
		return pagination.Page[*Taking]{}, err
	}
	return pagination.NewPage(items, total, p), nil
}

// -- Patient self-service --

func (s *Service) CreatePatientTaking(ctx context.Context, patientID uuid.UUID, in Input) (*Taking, error) {
	in.PatientID = patientID
	return s.create(ctx, in)
}

func (s *Service) GetPatientTaking(ctx context.Context, patientID, id uuid.UUID) (*Taking, error) {
	return s.get(ctx, patientID, id)
}

func (s *Service) ReplacePatientTaking(ctx context.Context, patientID, id uuid.UUID, in Input) (*Taking, error) {
	in.PatientID = patientID
	return s.replace(ctx, patientID, id, in)
}

func (s *Service) DeletePatientTaking(ctx context.Context, patientID, id uuid.UUID) error {
	return s.delete(ctx, patientID, id)
}

func (s *Service) ListPatientTakings(ctx context.Context, patientID uuid.UUID, f Filter, p pagination.Params) (pagination.Page[*Taking], error) {
	f.PatientID = patientID
	return s.ListTakings(ctx, f, p)
}

// ListByPatientAndMedicamentTx returns the takings used for schedule matching.
func (s *Service) ListByPatientAndMedicamentTx(ctx context.Context, q db.Querier, patientID, medicamentID uuid.UUID) ([]*Taking, error) {
	return s.repo.ListByPatientAndMedicament(ctx, q, patientID, medicamentID)
}
