package treatment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

var (
	ErrTreatmentNotFound = errors.New("treatment not found")
	ErrConflict          = errors.New("patient already has a treatment")
	ErrInvalidInput      = errors.New("invalid treatment")
	// ErrUnknownReference is returned when the patient or a medicament does
	// not exist.
	ErrUnknownReference = errors.New("unknown patient or medicament")
)

type Repository interface {
	Create(ctx context.Context, q db.Querier, t *Treatment) error
	GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*Treatment, error)
	GetByPatient(ctx context.Context, q db.Querier, patientID uuid.UUID) (*Treatment, error)
	Update(ctx context.Context, q db.Querier, t *Treatment) error
	Delete(ctx context.Context, q db.Querier, id uuid.UUID) error
	List(ctx context.Context, q db.Querier, f Filter, p pagination.Params) ([]*Treatment, int, error)
}
