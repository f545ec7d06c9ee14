package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ldapgate/ldapgate/internal/directory"
)

// Result is the JSON body of every authentication answer.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Fail writes an unsuccessful Result with the given status.
func Fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(Result{Error: msg})
}

// Verdict writes a proxy or test verdict: 200 on success, 401 otherwise.
func Verdict(c *fiber.Ctx, ok bool) error {
	if !ok {
		return Fail(c, fiber.StatusUnauthorized, MsgInvalidCredentials)
	}

	return c.JSON(Result{Success: true, Message: MsgLoginSuccessful})
}

// Outcome maps a directory outcome to its HTTP answer. Configuration errors
// are 500 with an opaque message, every other failure is 401.
func Outcome(c *fiber.Ctx, outcome directory.Outcome) error {
	ok, msg := outcome.Public()

	switch {
	case ok:
		return c.JSON(Result{Success: true, Message: msg})
	case outcome.Kind == directory.KindConfigurationError:
		return Fail(c, fiber.StatusInternalServerError, msg)
	default:
		return Fail(c, fiber.StatusUnauthorized, msg)
	}
}
