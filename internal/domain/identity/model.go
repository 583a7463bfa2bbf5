package identity

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// User maps to the users table. Every patient and nurse is a user.
type User struct {
	ID           uuid.UUID `json:"id"`
	FullName     *string   `json:"full_name,omitempty"`
	Email        string    `json:"email"`
	PhoneNumber  *string   `json:"phone_number,omitempty"`
	NationalID   string    `json:"national_id"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName is the full name when known, else the email.
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return u.Email
}

// Patient maps to users joined with the patients table.
type Patient struct {
	User
	BirthDate *time.Time `json:"birth_date,omitempty"`
	WeightKg  *float64   `json:"weight_in_kg,omitempty"`
	HeightCm  *float64   `json:"height_in_cm,omitempty"`

	// Derived, not stored.
	Age *int     `json:"age,omitempty"`
	BMI *float64 `json:"bmi,omitempty"`
}

// Derive fills Age and BMI from the stored measurements.
func (p *Patient) Derive(now time.Time) {
	p.Age = nil
	p.BMI = nil
	if p.BirthDate != nil {
		age := ageAt(*p.BirthDate, now)
		p.Age = &age
	}
	if p.WeightKg != nil && p.HeightCm != nil && *p.HeightCm > 0 {
		m := *p.HeightCm / 100
		bmi := math.Round(*p.WeightKg/(m*m)*10) / 10
		p.BMI = &bmi
	}
}

func ageAt(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// Nurse is a user with the nurse role.
type Nurse struct {
	User
}

// UserInput is the writable part of a user. Password is optional on create
// (one is generated) and on replace (the stored one is kept).
type UserInput struct {
	FullName    *string `json:"full_name"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	NationalID  string  `json:"national_id"`
	Password    *string `json:"password"`
}

// PatientInput is the writable part of a patient.
type PatientInput struct {
	UserInput
	BirthDate *time.Time `json:"birth_date"`
	WeightKg  *float64   `json:"weight_in_kg"`
	HeightCm  *float64   `json:"height_in_cm"`
}

// UserFilter narrows list queries. Zero fields are ignored.
type UserFilter struct {
	Role       string
	Email      string
	NationalID string
	// FullName matches case-insensitively anywhere in the name.
	FullName string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}
