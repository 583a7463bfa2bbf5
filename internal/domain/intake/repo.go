package intake

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

var (
	ErrTakingNotFound = errors.New("medicament taken not found")
	ErrInvalidInput   = errors.New("invalid medicament taken")
)

type Repository interface {
	Create(ctx context.Context, q db.Querier, t *Taking) error
	GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*Taking, error)
	Update(ctx context.Context, q db.Querier, t *Taking) error
	Delete(ctx context.Context, q db.Querier, id uuid.UUID) error
	List(ctx context.Context, q db.Querier, f Filter, p pagination.Params) ([]*Taking, int, error)
	// ListByPatientAndMedicament returns every taking ordered by TakenAt.
	ListByPatientAndMedicament(ctx context.Context, q db.Querier, patientID, medicamentID uuid.UUID) ([]*Taking, error)
}
