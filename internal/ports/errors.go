package ports

import (
	"errors"
	"fmt"

	"github.com/ahrav/questlog/internal/domain"
)

// Provider failure kinds. The llm package maps SDK errors onto these so the
// application can tell an unreachable classifier from a misconfigured one.
var (
	ErrRateLimited          = errors.New("rate limited")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrTimeout              = errors.New("operation timed out")
	ErrInvalidResponse      = errors.New("invalid response")
	ErrAuthenticationFailed = errors.New("authentication failed")

	ErrConfigNotFound = errors.New("configuration not found")
)

// Store outcomes. Each wraps the matching domain error so callers above the
// ports layer can test with the domain sentinels alone.
var (
	// ErrNotFound means no row matched the id and owner.
	ErrNotFound = fmt.Errorf("store: %w", domain.ErrNotFound)

	// ErrConflict means a uniqueness constraint rejected the write, e.g. a
	// second main quest in a quarter.
	ErrConflict = fmt.Errorf("store: %w", domain.ErrConflict)

	// ErrNotEligible means a proof write found the task outside the state it
	// was checked in, e.g. moved out of completed by a concurrent edit.
	ErrNotEligible = fmt.Errorf("store: %w", domain.ErrTaskNotEligible)

	// ErrNoAllowance means the owner's retry bucket for the quarter is empty.
	ErrNoAllowance = fmt.Errorf("store: %w", domain.ErrQuotaExhausted)
)

// StoreError wraps a driver failure. It matches both domain.ErrPersistence
// and the driver error under errors.Is.
type StoreError struct {
	Entity    string // "quest", "task", "allowance"
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: operation=%s, entity=%s, err=%v", e.Operation, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{domain.ErrPersistence, e.Err} }

func NewStoreError(entity, operation string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Err: err}
}

// ConfigError reports an unusable configuration value by its dotted key,
// e.g. "proofs.s3.bucket".
type ConfigError struct {
	ConfigKey string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{ConfigKey: key, Err: err}
}
