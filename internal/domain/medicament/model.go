package medicament

import (
	"time"

	"github.com/google/uuid"
)

// Medicament is a catalog entry. Side effects and presentations are free text.
type Medicament struct {
	ID            uuid.UUID `json:"id"`
	TradeName     *string   `json:"trade_name"`
	GenericName   string    `json:"generic_name"`
	Description   string    `json:"description"`
	SideEffects   []string  `json:"side_effects"`
	Presentations []string  `json:"presentations"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DisplayName is the trade name when present, else the generic name.
func (m *Medicament) DisplayName() string {
	if m.TradeName != nil && *m.TradeName != "" {
		return *m.TradeName
	}
	return m.GenericName
}

type Input struct {
	TradeName     *string  `json:"trade_name"`
	GenericName   string   `json:"generic_name"`
	Description   string   `json:"description"`
	SideEffects   []string `json:"side_effects"`
	Presentations []string `json:"presentations"`
}

type Filter struct {
	TradeName   string
	GenericName string
	Search      string
}
