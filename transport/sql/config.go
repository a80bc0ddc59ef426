package sql

import (
	"fmt"
	"os"
)

// Config locates the Postgres database messages are stored in
type Config struct {
	DBName string
	DBHost string
	DBUser string
	DBPass string

	// Topic is the table suffix messages are published to, transport.DefaultTopic
	// when empty
	Topic string
}

func (c Config) DBDsn() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s sslmode=disable",
		c.DBUser,
		c.DBPass,
		c.DBName,
		c.DBHost,
	)
}

// ConfigFromEnv reads MEDIATOR_DB_NAME, MEDIATOR_DB_HOST, MEDIATOR_DB_USER and
// MEDIATOR_DB_PASS, falling back to def for the ones unset
func ConfigFromEnv(def Config) Config {
	c := def
	for env, field := range map[string]*string{
		"MEDIATOR_DB_NAME": &c.DBName,
		"MEDIATOR_DB_HOST": &c.DBHost,
		"MEDIATOR_DB_USER": &c.DBUser,
		"MEDIATOR_DB_PASS": &c.DBPass,
	} {
		if v, ok := os.LookupEnv(env); ok {
			*field = v
		}
	}
	return c
}
