package medicament

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

var (
	ErrMedicamentNotFound = errors.New("medicament not found")
	ErrConflict           = errors.New("medicament with the same trade and generic name already exists")
	ErrInvalidInput       = errors.New("invalid medicament")
	ErrInUse              = errors.New("medicament is referenced by a treatment")
)

type Repository interface {
	Create(ctx context.Context, q db.Querier, m *Medicament) error
	GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*Medicament, error)
	Update(ctx context.Context, q db.Querier, m *Medicament) error
	Delete(ctx context.Context, q db.Querier, id uuid.UUID) error
	List(ctx context.Context, q db.Querier, f Filter, p pagination.Params) ([]*Medicament, int, error)
}
