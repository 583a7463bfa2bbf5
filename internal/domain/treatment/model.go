package treatment

import (
	"time"

	"github.com/google/uuid"
)

// Treatment is the single active treatment of a patient.
type Treatment struct {
	ID          uuid.UUID    `json:"id"`
	PatientID   uuid.UUID    `json:"patient_id"`
	Medicaments []Medicament `json:"medicaments"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Medicament is a medicament prescribed inside a treatment together with its
// taking schedule. ValidityStart and ValidityEnd are stored at 00:00 of their
// day in the reference time zone; both days are inclusive.
type Medicament struct {
	MedicamentID    uuid.UUID  `json:"medicament_id"`
	Dose            string     `json:"dose"`
	TakingSchedules []string   `json:"taking_schedules"`
	ValidityStart   time.Time  `json:"taking_schedules_starting_timestamp"`
	ValidityEnd     *time.Time `json:"taking_schedules_ending_timestamp"`
}

// Medicament returns the entry for medicamentID, or nil.
func (t *Treatment) Medicament(medicamentID uuid.UUID) *Medicament {
	for i := range t.Medicaments {
		if t.Medicaments[i].MedicamentID == medicamentID {
			return &t.Medicaments[i]
		}
	}
	return nil
}

type Input struct {
	PatientID   uuid.UUID    `json:"patient_id"`
	Medicaments []Medicament `json:"medicaments"`
}

type Filter struct {
	PatientID    uuid.UUID
	MedicamentID uuid.UUID
}
