package physician

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("physician not found")
	ErrInvalidEmail = errors.New("invalid email")
	ErrInactive     = errors.New("physician is inactive")
)

// Doctor is a reading physician who can be assigned studies.
type Doctor struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Specialty  string     `json:"specialty,omitempty"`
	Modalities []string   `json:"modalities,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DisabledAt *time.Time `json:"disabled_at,omitempty"`
}

// ReadsModality reports whether the doctor reads the given modality.
// An empty modality list means the doctor reads everything.
func (d *Doctor) ReadsModality(modality string) bool {
	if len(d.Modalities) == 0 {
		return true
	}
	for _, m := range d.Modalities {
		if strings.EqualFold(m, modality) {
			return true
		}
	}
	return false
}

func (d *Doctor) Validate() error {
	if d.Name == "" {
		return errors.New("name is required")
	}
	if !strings.Contains(d.Email, "@") {
		return ErrInvalidEmail
	}
	return nil
}
