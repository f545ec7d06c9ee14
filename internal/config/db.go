package config

import (
	"fmt"
	"net/url"
)

// DB holds the database settings of a shared limiter storage.
type DB struct {
	Extras   string
	Host     string
	Port     int
	User     string
	Password string `json:"-" toml:"-"`
	Name     string
	Table    string
}

// MySQLDSN builds the go-sql-driver Data Source Name.
func (db DB) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		db.User,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
		db.Extras,
	)
}

// PostgresURI builds a postgres:// connection URI.
func (db DB) PostgresURI() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.User, db.Password),
		Host:     fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:     "/" + db.Name,
		RawQuery: db.Extras,
	}

	return u.String()
}
