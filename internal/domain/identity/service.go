package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/glucohealth/glucohealth/internal/platform/auth"
	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/internal/platform/notification"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

const generatedPasswordLength = 12

var roleLabels = map[string]string{
	auth.RoleNurse:   "enfermero/a",
	auth.RolePatient: "paciente",
}

type Service struct {
	tx        db.Transactor
	users     UserRepository
	patients  PatientRepository
	mailer    notification.EmailSender
	templates *notification.TemplateEngine
	tokens    *auth.TokenIssuer
	now       func() time.Time
	hashCost  int
}

func NewService(
	tx db.Transactor,
	users UserRepository,
	patients PatientRepository,
	mailer notification.EmailSender,
	templates *notification.TemplateEngine,
	tokens *auth.TokenIssuer,
) *Service {
	return &Service{
		tx:        tx,
		users:     users,
		patients:  patients,
		mailer:    mailer,
		templates: templates,
		tokens:    tokens,
		now:       time.Now,
		hashCost:  bcrypt.DefaultCost,
	}
}

// -- Validation --

func normalizeUserInput(in *UserInput) error {
	in.Email = strings.TrimSpace(in.Email)
	in.NationalID = strings.TrimSpace(in.NationalID)
	if in.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if in.NationalID == "" {
		return fmt.Errorf("%w: national_id is required", ErrInvalidInput)
	}
	if in.Password != nil && len(*in.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	return nil
}

func validatePatientInput(in *PatientInput, now time.Time) error {
	if err := normalizeUserInput(&in.UserInput); err != nil {
		return err
	}
	if in.BirthDate != nil && in.BirthDate.After(now) {
		return fmt.Errorf("%w: birth_date cannot be in the future", ErrInvalidInput)
	}
	if in.WeightKg != nil && *in.WeightKg <= 0 {
		return fmt.Errorf("%w: weight_in_kg must be positive", ErrInvalidInput)
	}
	if in.HeightCm != nil && *in.HeightCm <= 0 {
		return fmt.Errorf("%w: height_in_cm must be positive", ErrInvalidInput)
	}
	return nil
}

func generatePassword() (string, error) {
	const alphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, generatedPasswordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b), nil
}

// newUser builds the user row and returns the plain password to send by mail.
func (s *Service) newUser(in UserInput, role string) (User, string, error) {
	password := ""
	if in.Password != nil {
		password = *in.Password
	} else {
		generated, err := generatePassword()
		if err != nil {
			return User{}, "", err
		}
		password = generated
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return User{}, "", fmt.Errorf("hash password: %w", err)
	}
	return User{
		FullName:     in.FullName,
		Email:        in.Email,
		PhoneNumber:  in.PhoneNumber,
		NationalID:   in.NationalID,
		PasswordHash: string(hash),
		Role:         role,
	}, password, nil
}

func (s *Service) applyUserInput(u *User, in UserInput) error {
	u.FullName = in.FullName
	u.Email = in.Email
	u.PhoneNumber = in.PhoneNumber
	u.NationalID = in.NationalID
	if in.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), s.hashCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = string(hash)
	}
	return nil
}

// sendSignupMail runs inside the creating transaction so a mail failure
// rolls the user back.
func (s *Service) sendSignupMail(ctx context.Context, u *User, password string) error {
	subject, body, err := s.templates.Render(notification.TemplateSignup, map[string]string{
		"name":     u.DisplayName(),
		"role":     roleLabels[u.Role],
		"email":    u.Email,
		"password": password,
	})
	if err != nil {
		return err
	}
	if err := s.mailer.SendEmail(ctx, u.Email, subject, body); err != nil {
		return fmt.Errorf("send signup mail: %w", err)
	}
	return nil
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, in PatientInput) (*Patient, error) {
	if err := validatePatientInput(&in, s.now()); err != nil {
		return nil, err
	}
	u, password, err := s.newUser(in.UserInput, auth.RolePatient)
	if err != nil {
		return nil, err
	}
	p := &Patient{User: u, BirthDate: in.BirthDate, WeightKg: in.WeightKg, HeightCm: in.HeightCm}

	err = s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		if err := s.patients.Create(ctx, q, p); err != nil {
			return err
		}
		return s.sendSignupMail(ctx, &p.User, password)
	})
	if err != nil {
		return nil, err
	}
	p.Derive(s.now())
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p *Patient
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		p, err = s.patients.GetByID(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.Derive(s.now())
	return p, nil
}

// GetPatientTx reads a patient on a caller supplied handle.
func (s *Service) GetPatientTx(ctx context.Context, q db.Querier, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	p.Derive(s.now())
	return p, nil
}

func (s *Service) ReplacePatient(ctx context.Context, id uuid.UUID, in PatientInput) (*Patient, error) {
	if err := validatePatientInput(&in, s.now()); err != nil {
		return nil, err
	}
	var p *Patient
	err := s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		var err error
		p, err = s.patients.GetByID(ctx, q, id)
		if err != nil {
			return err
		}
		if err := s.applyUserInput(&p.User, in.UserInput); err != nil {
			return err
		}
		p.BirthDate, p.WeightKg, p.HeightCm = in.BirthDate, in.WeightKg, in.HeightCm
		return s.patients.Update(ctx, q, p)
	})
	if err != nil {
		return nil, err
	}
	p.Derive(s.now())
	return p, nil
}

// DeletePatient removes the user; treatments, takings and reminder markers
// cascade.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		if _, err := s.patients.GetByID(ctx, q, id); err != nil {
			return err
		}
		return s.users.Delete(ctx, q, id)
	})
}

func (s *Service) ListPatients(ctx context.Context, f UserFilter, p pagination.Params) (pagination.Page[*Patient], error) {
	var items []*Patient
	var total int
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		items, total, err = s.patients.List(ctx, q, f, p)
		return err
	})
	if err != nil {
		return pagination.Page[*Patient]{}, err
	}
	now := s.now()
	for _, item := range items {
		item.Derive(now)
	}
	return pagination.NewPage(items, total, p), nil
}

// ListPatientsTx pages patients on a caller supplied handle.
func (s *Service) ListPatientsTx(ctx context.Context, q db.Querier, p pagination.Params) (pagination.Page[*Patient], error) {
	items, total, err := s.patients.List(ctx, q, UserFilter{}, p)
	if err != nil {
		return pagination.Page[*Patient]{}, err
	}
	return pagination.NewPage(items, total, p), nil
}

// -- Nurse --

func (s *Service) CreateNurse(ctx context.Context, in UserInput) (*Nurse, error) {
	if err := normalizeUserInput(&in); err != nil {
		return nil, err
	}
	u, password, err := s.newUser(in, auth.RoleNurse)
	if err != nil {
		return nil, err
	}
	err = s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		if err := s.users.Create(ctx, q, &u); err != nil {
			return err
		}
		return s.sendSignupMail(ctx, &u, password)
	})
	if err != nil {
		return nil, err
	}
	return &Nurse{User: u}, nil
}

func (s *Service) getNurse(ctx context.Context, q db.Querier, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, q, id)
	if errors.Is(err, ErrUserNotFound) || (err == nil && u.Role != auth.RoleNurse) {
		return nil, ErrNurseNotFound
	}
	return u, err
}

func (s *Service) GetNurse(ctx context.Context, id uuid.UUID) (*Nurse, error) {
	var u *User
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		u, err = s.getNurse(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Nurse{User: *u}, nil
}

func (s *Service) ReplaceNurse(ctx context.Context, id uuid.UUID, in UserInput) (*Nurse, error) {
	if err := normalizeUserInput(&in); err != nil {
		return nil, err
	}
	var u *User
	err := s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		var err error
		if u, err = s.getNurse(ctx, q, id); err != nil {
			return err
		}
		if err := s.applyUserInput(u, in); err != nil {
			return err
		}
		return s.users.Update(ctx, q, u)
	})
	if err != nil {
		return nil, err
	}
	return &Nurse{User: *u}, nil
}

func (s *Service) DeleteNurse(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, db.ReadWrite, func(q db.Querier) error {
		if _, err := s.getNurse(ctx, q, id); err != nil {
			return err
		}
		return s.users.Delete(ctx, q, id)
	})
}

func (s *Service) ListNurses(ctx context.Context, f UserFilter, p pagination.Params) (pagination.Page[*Nurse], error) {
	f.Role = auth.RoleNurse
	var users []*User
	var total int
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		users, total, err = s.users.List(ctx, q, f, p)
		return err
	})
	if err != nil {
		return pagination.Page[*Nurse]{}, err
	}
	nurses := make([]*Nurse, 0, len(users))
	for _, u := range users {
		nurses = append(nurses, &Nurse{User: *u})
	}
	return pagination.NewPage(nurses, total, p), nil
}

// -- Users / auth --

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var u *User
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		u, err = s.users.GetByID(ctx, q, id)
		return err
	})
	return u, err
}

// Login checks the credentials and issues an access token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var u *User
	err := s.tx.InTx(ctx, db.ReadOnly, func(q db.Querier) error {
		var err error
		u, err = s.users.GetByEmail(ctx, q, strings.TrimSpace(email))
		return err
	})
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	token, exp, err := s.tokens.Issue(u.ID.String(), u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: token, TokenType: "Bearer", ExpiresAt: exp, User: u}, nil
}
