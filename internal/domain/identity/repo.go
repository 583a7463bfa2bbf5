package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrNurseNotFound      = errors.New("nurse not found")
	ErrConflict           = errors.New("email or national id already registered")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type UserRepository interface {
	Create(ctx context.Context, q db.Querier, u *User) error
	GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, q db.Querier, email string) (*User, error)
	Update(ctx context.Context, q db.Querier, u *User) error
	Delete(ctx context.Context, q db.Querier, id uuid.UUID) error
	List(ctx context.Context, q db.Querier, f UserFilter, p pagination.Params) ([]*User, int, error)
}

type PatientRepository interface {
	// Create inserts the user row and the patient row; run it in a transaction.
	Create(ctx context.Context, q db.Querier, p *Patient) error
	GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, q db.Querier, p *Patient) error
	List(ctx context.Context, q db.Querier, f UserFilter, p pagination.Params) ([]*Patient, int, error)
}
