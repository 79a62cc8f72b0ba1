// Package ormerr defines the error taxonomy shared by the perry ORM packages.
// Every kind is a sentinel so callers can branch with errors.Is, and the
// richer kinds are typed so callers can inspect them with errors.As.
package ormerr

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned when an id based lookup misses
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordNotSaved is returned by the bang persistence entry points when
	// the write adapter rejects a write or delete
	ErrRecordNotSaved = errors.New("record not saved")

	// ErrAssociation is the parent of every association error
	ErrAssociation = errors.New("association error")

	// ErrAssociationNotFound is returned for unknown association names and
	// broken has_many_through chains
	ErrAssociationNotFound = fmt.Errorf("%w: association not found", ErrAssociation)

	// ErrAssociationPreloadNotSupported is returned when an association that
	// depends on instance data is used in includes
	ErrAssociationPreloadNotSupported = fmt.Errorf("%w: association cannot be eager loaded", ErrAssociation)

	// ErrPolymorphicAssociationType is returned when a discriminator does not
	// resolve to a registered model
	ErrPolymorphicAssociationType = fmt.Errorf("%w: polymorphic type not registered", ErrAssociation)

	// ErrPolymorphicTypeMissing is returned when a polymorphic record carries
	// no discriminator value at all
	ErrPolymorphicTypeMissing = fmt.Errorf("%w: polymorphic type missing", ErrAssociation)

	// ErrConfiguration is the parent of every ConfigurationError
	ErrConfiguration = errors.New("configuration error")

	// ErrNoSuchQueryMethod is returned for unknown dynamic condition or finder names
	ErrNoSuchQueryMethod = errors.New("no such query method")

	// ErrFrozenRecord is returned when mutating or persisting a frozen record
	ErrFrozenRecord = errors.New("record is frozen")

	// ErrPrimaryKeyMissing is returned when a successful create response
	// carries no primary key
	ErrPrimaryKeyMissing = errors.New("primary key not included in response")

	// ErrTransport is returned when a remote service answers a read with a
	// failure the transport cannot turn into rows
	ErrTransport = errors.New("transport error")
)

// ConfigurationError reports a missing or invalid declaration such as an
// unknown adapter type or an association without a class name
type ConfigurationError struct {
	Subject string
	Reason  string
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Subject, e.Reason)
}

// Is lets errors.Is(err, ErrConfiguration) match every ConfigurationError
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError creates a ConfigurationError
func NewConfigurationError(subject, reason string) error {
	return &ConfigurationError{Subject: subject, Reason: reason}
}

// NotFound wraps ErrRecordNotFound with a model name and a lookup description
func NotFound(model string, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s %s", ErrRecordNotFound, model, fmt.Sprintf(format, args...))
}

// IsRecordNotFound returns true if the error is ErrRecordNotFound
func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsRecordNotSaved returns true if the error is ErrRecordNotSaved
func IsRecordNotSaved(err error) bool {
	return errors.Is(err, ErrRecordNotSaved)
}

// IsAssociationError returns true for any association error kind
func IsAssociationError(err error) bool {
	return errors.Is(err, ErrAssociation)
}

// IsConfigurationError returns true if the error is a ConfigurationError
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
