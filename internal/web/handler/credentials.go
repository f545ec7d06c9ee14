package handler

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var (
	// ErrMissingFields is returned when username or password is empty.
	ErrMissingFields = errors.New("username and password are required")

	// ErrInvalidUsername is returned for a username with control characters or above MaxUsernameLen bytes.
	ErrInvalidUsername = errors.New("invalid username")

	validate = newValidator() //nolint:gochecknoglobals
)

// Credentials is the body of the authentication routes.
type Credentials struct {
	Action   string `json:"action,omitempty" form:"action"`
	Username string `json:"username" form:"username" validate:"required,username"`
	Password string `json:"password" form:"password" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool { //nolint:errcheck // static tag
		return ValidUsername(fl.Field().String())
	})

	return v
}

// ValidUsername rejects usernames that cannot be a directory account name
// before they reach a search filter.
func ValidUsername(username string) bool {
	return len(username) <= MaxUsernameLen && !strings.ContainsFunc(username, unicode.IsControl)
}

// Validate checks creds and returns ErrMissingFields or ErrInvalidUsername.
func (creds Credentials) Validate() error {
	err := validate.Struct(creds)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if fe.Tag() == "username" {
				return ErrInvalidUsername
			}
		}
	}

	return ErrMissingFields
}

// ParseCredentials reads and validates the request body. On failure the 400
// answer has already been written and the returned error is the one to
// return from the handler.
func ParseCredentials(c *fiber.Ctx) (Credentials, bool, error) {
	var creds Credentials

	if err := c.BodyParser(&creds); err != nil {
		return creds, false, Fail(c, fiber.StatusBadRequest, MsgInvalidBody)
	}

	switch err := creds.Validate(); {
	case errors.Is(err, ErrInvalidUsername):
		return creds, false, Fail(c, fiber.StatusBadRequest, MsgInvalidUsername)
	case err != nil:
		return creds, false, Fail(c, fiber.StatusBadRequest, MsgMissingFields)
	}

	return creds, true, nil
}
