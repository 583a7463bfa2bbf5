package medicament

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

type repoPG struct{}

func NewRepoPG() Repository {
	return &repoPG{}
}

const medicamentCols = `id, trade_name, generic_name, description, side_effects, presentations, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, q db.Querier, m *Medicament) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := q.QueryRow(ctx, `
		INSERT INTO medicaments (id, trade_name, generic_name, description, side_effects, presentations)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		m.ID, m.TradeName, m.GenericName, m.Description, m.SideEffects, m.Presentations,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert medicament: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*Medicament, error) {
	m, err := scanMedicament(q.QueryRow(ctx, `SELECT `+medicamentCols+` FROM medicaments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMedicamentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get medicament: %w", err)
	}
	return m, nil
}

func (r *repoPG) Update(ctx context.Context, q db.Querier, m *Medicament) error {
	err := q.QueryRow(ctx, `
		UPDATE medicaments SET trade_name=$2, generic_name=$3, description=$4, side_effects=$5, presentations=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		m.ID, m.TradeName, m.GenericName, m.Description, m.SideEffects, m.Presentations,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrMedicamentNotFound
	}
	if db.IsUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update medicament: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, q db.Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM medicaments WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	if err != nil {
		return fmt.Errorf("delete medicament: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMedicamentNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, q db.Querier, f Filter, p pagination.Params) ([]*Medicament, int, error) {
	w := &db.Filter{}
	if f.TradeName != "" {
		w.Add("lower(trade_name) = lower($%d)", f.TradeName)
	}
	if f.GenericName != "" {
		w.Add("lower(generic_name) = lower($%d)", f.GenericName)
	}
	if f.Search != "" {
		w.Add("(trade_name ILIKE '%%' || $%[1]d || '%%' OR generic_name ILIKE '%%' || $%[1]d || '%%')", f.Search)
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM medicaments`+w.Where(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medicaments: %w", err)
	}
	page, args := w.Page(p.Limit(), p.Offset())
	rows, err := q.Query(ctx, `SELECT `+medicamentCols+` FROM medicaments`+w.Where()+` ORDER BY generic_name, trade_name NULLS FIRST, id`+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medicaments: %w", err)
	}
	defer rows.Close()

	var items []*Medicament
	for rows.Next() {
		m, err := scanMedicament(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func scanMedicament(row pgx.Row) (*Medicament, error) {
	var m Medicament
	err := row.Scan(&m.ID, &m.TradeName, &m.GenericName, &m.Description, &m.SideEffects, &m.Presentations, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if m.SideEffects == nil {
		m.SideEffects = []string{}
	}
	if m.Presentations == nil {
		m.Presentations = []string{}
	}
	return &m, nil
}
