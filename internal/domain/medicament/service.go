package medicament

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

type Service struct {
	tx   db.Transactor
	repo Repository
}

func NewService(tx db.Transactor, repo Repository) *Service {
	return &Service{tx: tx, repo: repo}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func fromInput(in Input) (*Medicament, error) {
	m := &Medicament{
		GenericName:   strings.TrimSpace(in.GenericName),
		Description:   strings.TrimSpace(in.Description),
		SideEffects:   cleanList(in.SideEffects),
		Presentations: cleanList(in.Presentations),
	}
	if in.TradeName != nil {
		if tn := strings.TrimSpace(*in.TradeName); tn != "" {
			m.TradeName = &tn
		}
	}
	if m.GenericName == "" {
		return nil, fmt.Errorf("%w: generic_name is required", ErrInvalidInput)
	}
	if m.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	return m, nil
}

func (s *Service) CreateMedicament(ctx context.Context, in Input) (*Medicament, error) {
	m, err := fromInput(in)
	if err != nil {
		return nil, err
	}
	err = s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		return s.repo.Create(ctx, q, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) GetMedicament(ctx context.Context, id uuid.UUID) (*Medicament, error) {
	var m *Medicament
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		m, err = s.repo.GetByID(ctx, q, id)
		return err
	})
	return m, err
}

// GetMedicamentTx reads a medicament on a caller supplied handle.
func (s *Service) GetMedicamentTx(ctx context.Context, q db.Querier, id uuid.UUID) (*Medicament, error) {
	return s.repo.GetByID(ctx, q, id)
}

func (s *Service) ReplaceMedicament(ctx context.Context, id uuid.UUID, in Input) (*Medicament, error) {
	m, err := fromInput(in)
	if err != nil {
		return nil, err
	}
	m.ID = id
	err = s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		return s.repo.Update(ctx, q, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) DeleteMedicament(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		return s.repo.Delete(ctx, q, id)
	})
}

func (s *Service) ListMedicaments(ctx context.Context, f Filter, p pagination.Params) (pagination.Page[*Medicament], error) {
	var items []*Medicament
	var total int
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		items, total, err = s.repo.List(ctx, q, f, p)
		return err
	})
	if err != nil {
		return pagination.Page[*Medicament]{}, err
	}
	return pagination.NewPage(items, total, p), nil
}
