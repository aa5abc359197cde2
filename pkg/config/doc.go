// Package config loads environment-based configuration into tagged
// structs using github.com/caarlos0/env, with optional .env support via
// godotenv.
//
// Each queue subsystem declares its own Config struct with `env` tags;
// the process composes them into one explicit configuration object at
// startup and injects it into the components that need it. Nothing in
// this package keeps global state beyond the one-time .env load.
package config
