package contact

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ecolehq/ecole/core"
)

// Message is a contact-form submission; write-only from the public site,
// triaged by admins.
type Message struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	Responded bool      `json:"responded"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type NewMessage struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Name = core.CleanString(nm.Name)
	nm.Email = core.CleanString(nm.Email, true /* lower */)
	nm.Message = core.CleanString(nm.Message)
	return validate.Struct(nm)
}
