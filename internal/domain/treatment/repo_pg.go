package treatment

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

const treatmentCols = `t.id, t.patient_id, t.created_at, t.updated_at`

func mapWriteErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return ErrConflict
	case db.IsForeignKeyViolation(err):
		return ErrUnknownReference
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (r *repoPG) Create(ctx context.Context, q db.Querier, t *Treatment) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := q.QueryRow(ctx, `
		INSERT INTO treatments (id, patient_id) VALUES ($1, $2)
		RETURNING created_at, updated_at`,
		t.ID, t.PatientID,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err := mapWriteErr(err, "insert treatment"); err != nil {
		return err
	}
	return r.insertMedicaments(ctx, q, t)
}

func (r *repoPG) insertMedicaments(ctx context.Context, q db.Querier, t *Treatment) error {
	for i, m := range t.Medicaments {
		_, err := q.Exec(ctx, `
			INSERT INTO treatment_medicaments (treatment_id, medicament_id, position, dose, validity_start, validity_end)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, m.MedicamentID, i, m.Dose, m.ValidityStart, m.ValidityEnd)
		if err := mapWriteErr(err, "insert treatment medicament"); err != nil {
			return err
		}
		for j, expr := range m.TakingSchedules {
			_, err := q.Exec(ctx, `
				INSERT INTO treatment_medicament_taking_schedules (treatment_id, medicament_id, position, taking_schedule)
				VALUES ($1, $2, $3, $4)`,
				t.ID, m.MedicamentID, j, expr)
			if err := mapWriteErr(err, "insert taking schedule"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*Treatment, error) {
	return r.getOne(ctx, q, `SELECT `+treatmentCols+` FROM treatments t WHERE t.id = $1`, id)
}

func (r *repoPG) GetByPatient(ctx context.Context, q db.Querier, patientID uuid.UUID) (*Treatment, error) {
	return r.getOne(ctx, q, `SELECT `+treatmentCols+` FROM treatments t WHERE t.patient_id = $1`, patientID)
}

func (r *repoPG) getOne(ctx context.Context, q db.Querier, sql string, arg any) (*Treatment, error) {
	t, err := scanTreatment(q.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTreatmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get treatment: %w", err)
	}
	if t.Medicaments, err = r.loadMedicaments(ctx, q, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *repoPG) loadMedicaments(ctx context.Context, q db.Querier, treatmentID uuid.UUID) ([]Medicament, error) {
	rows, err := q.Query(ctx, `
		SELECT tm.medicament_id, tm.dose, tm.validity_start, tm.validity_end,
			COALESCE(array_agg(s.taking_schedule ORDER BY s.position) FILTER (WHERE s.taking_schedule IS NOT NULL), '{}')
		FROM treatment_medicaments tm
		LEFT JOIN treatment_medicament_taking_schedules s
			ON s.treatment_id = tm.treatment_id AND s.medicament_id = tm.medicament_id
		WHERE tm.treatment_id = $1
		GROUP BY tm.treatment_id, tm.medicament_id
		ORDER BY tm.position`, treatmentID)
	if err != nil {
		return nil, fmt.Errorf("load treatment medicaments: %w", err)
	}
	defer rows.Close()

	meds := []Medicament{}
	for rows.Next() {
		var m Medicament
		if err := rows.Scan(&m.MedicamentID, &m.Dose, &m.ValidityStart, &m.ValidityEnd, &m.TakingSchedules); err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

// Update replaces the treatment's patient and its whole medicament list.
func (r *repoPG) Update(ctx context.Context, q db.Querier, t *Treatment) error {
	err := q.QueryRow(ctx, `
		UPDATE treatments SET patient_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		t.ID, t.PatientID,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTreatmentNotFound
	}
	if err := mapWriteErr(err, "update treatment"); err != nil {
		return err
	}
	if _, err := q.Exec(ctx, `DELETE FROM treatment_medicaments WHERE treatment_id = $1`, t.ID); err != nil {
		return fmt.Errorf("clear treatment medicaments: %w", err)
	}
	return r.insertMedicaments(ctx, q, t)
}

func (r *repoPG) Delete(ctx context.Context, q db.Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM treatments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete treatment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTreatmentNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, q db.Querier, f Filter, p pagination.Params) ([]*Treatment, int, error) {
	w := &db.Filter{}
	if f.PatientID != uuid.Nil {
		w.Eq("t.patient_id", f.PatientID)
	}
	if f.MedicamentID != uuid.Nil {
		w.Add("EXISTS (SELECT 1 FROM treatment_medicaments tm WHERE tm.treatment_id = t.id AND tm.medicament_id = $%d)", f.MedicamentID)
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM treatments t`+w.Where(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count treatments: %w", err)
	}
	page, args := w.Page(p.Limit(), p.Offset())
	rows, err := q.Query(ctx, `SELECT `+treatmentCols+` FROM treatments t`+w.Where()+` ORDER BY t.created_at, t.id`+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list treatments: %w", err)
	}
	var items []*Treatment
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		items = append(items, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// A handle can only run one query at a time inside a transaction.
	for _, t := range items {
		if t.Medicaments, err = r.loadMedicaments(ctx, q, t.ID); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	if err := row.Scan(&t.ID, &t.PatientID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
