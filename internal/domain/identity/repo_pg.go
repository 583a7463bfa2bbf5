package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

// -- User Repository --

type userRepoPG struct{}

func NewUserRepoPG() UserRepository {
	return &userRepoPG{}
}

const userCols = `u.id, u.full_name, u.email, u.phone_number, u.national_id, u.password_hash, u.role, u.created_at, u.updated_at`

func (r *userRepoPG) Create(ctx context.Context, q db.Querier, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := q.QueryRow(ctx, `
		INSERT INTO users (id, full_name, email, phone_number, national_id, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		u.ID, u.FullName, u.Email, u.PhoneNumber, u.NationalID, u.PasswordHash, u.Role,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, q, `SELECT `+userCols+` FROM users u WHERE u.id = $1`, id)
}

func (r *userRepoPG) GetByEmail(ctx context.Context, q db.Querier, email string) (*User, error) {
	return r.getOne(ctx, q, `SELECT `+userCols+` FROM users u WHERE lower(u.email) = lower($1)`, email)
}

func (r *userRepoPG) getOne(ctx context.Context, q db.Querier, sql string, arg any) (*User, error) {
	u, err := scanUser(q.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *userRepoPG) Update(ctx context.Context, q db.Querier, u *User) error {
	err := q.QueryRow(ctx, `
		UPDATE users SET full_name=$2, email=$3, phone_number=$4, national_id=$5, password_hash=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.FullName, u.Email, u.PhoneNumber, u.NationalID, u.PasswordHash,
	).Scan(&u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	if db.IsUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (r *userRepoPG) Delete(ctx context.Context, q db.Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func userFilter(f UserFilter) *db.Filter {
	w := &db.Filter{}
	if f.Role != "" {
		w.Eq("u.role", f.Role)
	}
	if f.Email != "" {
		w.Add("lower(u.email) = lower($%d)", f.Email)
	}
	if f.NationalID != "" {
		w.Eq("u.national_id", f.NationalID)
	}
	if f.FullName != "" {
		w.Add("u.full_name ILIKE '%%' || $%d || '%%'", f.FullName)
	}
	return w
}

func (r *userRepoPG) List(ctx context.Context, q db.Querier, f UserFilter, p pagination.Params) ([]*User, int, error) {
	w := userFilter(f)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM users u`+w.Where(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	page, args := w.Page(p.Limit(), p.Offset())
	rows, err := q.Query(ctx, `SELECT `+userCols+` FROM users u`+w.Where()+` ORDER BY u.created_at, u.id`+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PhoneNumber, &u.NationalID, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// -- Patient Repository --

type patientRepoPG struct {
	users UserRepository
}

func NewPatientRepoPG(users UserRepository) PatientRepository {
	return &patientRepoPG{users: users}
}

const patientCols = userCols + `, p.birth_date, p.weight_in_kg, p.height_in_cm`

const patientFrom = ` FROM users u JOIN patients p ON p.id = u.id`

func (r *patientRepoPG) Create(ctx context.Context, q db.Querier, p *Patient) error {
	p.Role = "patient"
	if err := r.users.Create(ctx, q, &p.User); err != nil {
		return err
	}
	_, err := q.Exec(ctx, `
		INSERT INTO patients (id, birth_date, weight_in_kg, height_in_cm)
		VALUES ($1, $2, $3, $4)`,
		p.ID, p.BirthDate, p.WeightKg, p.HeightCm,
	)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(q.QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE u.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, q db.Querier, p *Patient) error {
	if err := r.users.Update(ctx, q, &p.User); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrPatientNotFound
		}
		return err
	}
	tag, err := q.Exec(ctx, `
		UPDATE patients SET birth_date=$2, weight_in_kg=$3, height_in_cm=$4
		WHERE id = $1`,
		p.ID, p.BirthDate, p.WeightKg, p.HeightCm,
	)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, q db.Querier, f UserFilter, p pagination.Params) ([]*Patient, int, error) {
	f.Role = ""
	w := userFilter(f)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*)`+patientFrom+w.Where(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	page, args := w.Page(p.Limit(), p.Offset())
	rows, err := q.Query(ctx, `SELECT `+patientCols+patientFrom+w.Where()+` ORDER BY u.created_at, u.id`+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		pt, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, pt)
	}
	return patients, total, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.FullName, &p.Email, &p.PhoneNumber, &p.NationalID, &p.PasswordHash, &p.Role, &p.CreatedAt, &p.UpdatedAt,
		&p.BirthDate, &p.WeightKg, &p.HeightCm,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
