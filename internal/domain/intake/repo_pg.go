package intake

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

const takingCols = `id, patient_id, treatment_id, medicament_id, taken_at, created_at`

func (r *repoPG) Create(ctx context.Context, q db.Querier, t *Taking) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := q.QueryRow(ctx, `
		INSERT INTO medicaments_taken (id, patient_id, treatment_id, medicament_id, taken_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		t.ID, t.PatientID, t.TreatmentID, t.MedicamentID, t.TakenAt,
	).Scan(&t.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown patient, treatment or medicament", ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("insert medicament taken: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*Taking, error) {
	t, err := scanTaking(q.QueryRow(ctx, `SELECT `+takingCols+` FROM medicaments_taken WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTakingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get medicament taken: %w", err)
	}
	return t, nil
}

func (r *repoPG) Update(ctx context.Context, q db.Querier, t *Taking) error {
	err := q.QueryRow(ctx, `
		UPDATE medicaments_taken SET patient_id=$2, treatment_id=$3, medicament_id=$4, taken_at=$5
		WHERE id = $1
		RETURNING created_at`,
		t.ID, t.PatientID, t.TreatmentID, t.MedicamentID, t.TakenAt,
	).Scan(&t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTakingNotFound
	}
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown patient, treatment or medicament", ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("update medicament taken: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, q db.Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM medicaments_taken WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete medicament taken: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTakingNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, q db.Querier, f Filter, p pagination.Params) ([]*Taking, int, error) {
	w := &db.Filter{}
	if f.PatientID != uuid.Nil {
		w.Eq("patient_id", f.PatientID)
	}
	if f.TreatmentID != uuid.Nil {
		w.Eq("treatment_id", f.TreatmentID)
	}
	if f.MedicamentID != uuid.Nil {
		w.Eq("medicament_id", f.MedicamentID)
	}
	if f.From != nil {
		w.Add("taken_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.Add("taken_at <= $%d", *f.To)
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM medicaments_taken`+w.Where(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medicaments taken: %w", err)
	}
	page, args := w.Page(p.Limit(), p.Offset())
	items, err := r.query(ctx, q, `SELECT `+takingCols+` FROM medicaments_taken`+w.Where()+` ORDER BY taken_at DESC, id`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListByPatientAndMedicament(ctx context.Context, q db.Querier, patientID, medicamentID uuid.UUID) ([]*Taking, error) {
	return r.query(ctx, q, `
		SELECT `+takingCols+` FROM medicaments_taken
		WHERE patient_id = $1 AND medicament_id = $2
		ORDER BY taken_at, id`, patientID, medicamentID)
}

func (r *repoPG) query(ctx context.Context, q db.Querier, sql string, args ...any) ([]*Taking, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list medicaments taken: %w", err)
	}
	defer rows.Close()

	var items []*Taking
	for rows.Next() {
		t, err := scanTaking(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func scanTaking(row pgx.Row) (*Taking, error) {
	var t Taking
	if err := row.Scan(&t.ID, &t.PatientID, &t.TreatmentID, &t.MedicamentID, &t.TakenAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
