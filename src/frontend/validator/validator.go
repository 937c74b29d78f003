package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

type Payload interface {
	Validate() error
}

type AddToCartPayload struct {
	VariantID int64 `validate:"required,gt=0"`
	Quantity  int   `validate:"required,gte=1,lte=99"`
}

// ChangeCartPayload sets a line to an absolute quantity.
type ChangeCartPayload struct {
	Key      string `validate:"required,max=128"`
	Quantity int    `validate:"gte=0,lte=99"`
}

// StepCartPayload moves a line's quantity up or down.
type StepCartPayload struct {
	Key   string `validate:"required,max=128"`
	Delta int    `validate:"required,gte=-99,lte=99"`
}

type SearchPayload struct {
	Query string `validate:"max=200"`
}

type HandlePayload struct {
	Handle string `validate:"required,max=255,excludesall=/?#"`
}

func (p *AddToCartPayload) Validate() error  { return validate.Struct(p) }
func (p *ChangeCartPayload) Validate() error { return validate.Struct(p) }
func (p *StepCartPayload) Validate() error   { return validate.Struct(p) }
func (p *SearchPayload) Validate() error     { return validate.Struct(p) }
func (p *HandlePayload) Validate() error     { return validate.Struct(p) }

// ValidationErrorResponse turns validator errors into one readable error.
func ValidationErrorResponse(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return errors.New("invalid validation error format")
	}
	var msg strings.Builder
	for i, err := range validationErrs {
		if i > 0 {
			msg.WriteString("; ")
		}
		fmt.Fprintf(&msg, "Field '%s' is invalid: %s", err.Field(), err.Tag())
	}
	return errors.New(msg.String())
}
