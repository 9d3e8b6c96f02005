package config

import (
	"fmt"
	"strings"
)

// ValidationError describes one rejected configuration field.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error for field '%s' with value '%s': %s", e.Field, e.Value, e.Message)
}

// Validate checks a loaded config for values that would leave the service in
// a broken state. A missing DATABASE_URL is not fatal here: the database
// layer reports "unavailable" explicitly so the process can still serve the
// health endpoint.
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Port == "" {
		errs = append(errs, ValidationError{Field: "PORT", Value: cfg.Port, Message: "port is required"})
	}
	if cfg.OpenRouterTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "OPENROUTER_TIMEOUT_SECONDS", Value: cfg.OpenRouterTimeout.String(), Message: "timeout must be positive"})
	}
	if cfg.OpenRouterTemperature < 0 || cfg.OpenRouterTemperature > 2 {
		errs = append(errs, ValidationError{Field: "OPENROUTER_TEMPERATURE", Value: fmt.Sprintf("%g", cfg.OpenRouterTemperature), Message: "temperature must be between 0 and 2"})
	}
	if cfg.OpenRouterMaxTokens <= 0 {
		errs = append(errs, ValidationError{Field: "OPENROUTER_MAX_TOKENS", Value: fmt.Sprintf("%d", cfg.OpenRouterMaxTokens), Message: "max tokens must be positive"})
	}
	if cfg.DBMaxOpenConns <= 0 {
		errs = append(errs, ValidationError{Field: "DB_MAX_OPEN_CONNS", Value: fmt.Sprintf("%d", cfg.DBMaxOpenConns), Message: "must be positive"})
	}
	if cfg.DBMaxIdleConns < 0 || cfg.DBMaxIdleConns > cfg.DBMaxOpenConns {
		errs = append(errs, ValidationError{Field: "DB_MAX_IDLE_CONNS", Value: fmt.Sprintf("%d", cfg.DBMaxIdleConns), Message: "must be between 0 and DB_MAX_OPEN_CONNS"})
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{Field: "LOG_FORMAT", Value: cfg.LogFormat, Message: "must be json or text"})
	}
	switch cfg.Env {
	case "development", "staging", "production":
	default:
		errs = append(errs, ValidationError{Field: "ENV", Value: cfg.Env, Message: "must be development, staging or production"})
	}

	return errs
}
