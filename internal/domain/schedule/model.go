package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one expected dose of a day. ActualAt is the matched taking, if any.
type Entry struct {
	ExpectedAt time.Time  `json:"expected_taking_timestamp"`
	ActualAt   *time.Time `json:"actual_taking_timestamp"`
}

// Taken reports whether a taking was matched to the entry.
func (e Entry) Taken() bool {
	return e.ActualAt != nil
}

// MedicamentSchedule lists the doses of one treatment medicament for a day,
// ordered by ExpectedAt.
type MedicamentSchedule struct {
	MedicamentID uuid.UUID `json:"medicament_id"`
	Dose         string    `json:"dose"`
	Schedule     []Entry   `json:"schedule"`
}
