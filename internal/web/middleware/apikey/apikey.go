// Package apikey protects gateway routes with a static bearer key.
package apikey

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/rs/zerolog/log"

	"github.com/ldapgate/ldapgate/internal/web/handler"
)

// New returns a middleware accepting only `Authorization: Bearer <key>`.
// An empty key rejects every request.
func New(key string) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(_ *fiber.Ctx, got string) (bool, error) {
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				return false, keyauth.ErrMissingOrMalformedAPIKey
			}

			return true, nil
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Debug().Err(err).Str("IP", c.IP()).Str("path", c.Path()).Msg("api key rejected")

			return handler.Fail(c, fiber.StatusUnauthorized, handler.MsgUnauthorized)
		},
	})
}
