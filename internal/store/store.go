// Package store opens the storage backing the per IP rate limiter. Memory is
// the default; mysql and postgres share counters between several instances.
package store

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/mysql/v2"
	"github.com/gofiber/storage/postgres/v3"
	"github.com/rs/zerolog/log"

	"github.com/ldapgate/ldapgate/internal/config"
)

const defaultTable = "ldapgate_limiter"

// ErrUnknownStorage is returned for an unsupported Limiter.Storage value.
var ErrUnknownStorage = errors.New("unknown limiter storage")

// New returns the limiter storage for cfg. A nil storage means the limiter's
// in-memory default.
func New(cfg config.Limiter) (storage fiber.Storage, err error) {
	table := cfg.DB.Table
	if table == "" {
		table = defaultTable
	}

	// both drivers panic when the database is unreachable
	defer func() {
		if r := recover(); r != nil {
			storage = nil
			err = fmt.Errorf("open %s limiter storage: %v", cfg.Storage, r)
		}
	}()

	switch cfg.Storage {
	case "", "memory":
		return nil, nil
	case "mysql":
		storage = mysql.New(mysql.Config{
			ConnectionURI: cfg.DB.MySQLDSN(),
			Table:         table,
		})
	case "postgres":
		storage = postgres.New(postgres.Config{
			ConnectionURI: cfg.DB.PostgresURI(),
			Table:         table,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStorage, cfg.Storage)
	}

	log.Info().Str("storage", cfg.Storage).Str("table", table).Msg("limiter storage opened")

	return storage, nil
}
