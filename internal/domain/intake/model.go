package intake

import (
	"time"

	"github.com/google/uuid"
)

// Taking records that a patient took a dose of a medicament of their
// treatment at TakenAt.
type Taking struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patient_id"`
	TreatmentID  uuid.UUID `json:"treatment_id"`
	MedicamentID uuid.UUID `json:"medicament_id"`
	TakenAt      time.Time `json:"taking_timestamp"`
	CreatedAt    time.Time `json:"created_at"`
}

type Input struct {
	PatientID    uuid.UUID `json:"patient_id"`
	TreatmentID  uuid.UUID `json:"treatment_id"`
	MedicamentID uuid.UUID `json:"medicament_id"`
	TakenAt      time.Time `json:"taking_timestamp"`
}

// Filter narrows a listing. Zero values are ignored; From and To are
// inclusive.
type Filter struct {
	PatientID    uuid.UUID
	TreatmentID  uuid.UUID
	MedicamentID uuid.UUID
	From         *time.Time
	To           *time.Time
}
