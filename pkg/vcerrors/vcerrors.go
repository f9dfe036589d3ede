/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vcerrors

import (
	"errors"
	"fmt"
)

const (
	// ErrIssuerNotFound is used when an issuer could not be found in the issuer store.
	ErrIssuerNotFound = vcError("specified issuer does not exist")
	// ErrAssertionNotFound is used when a badge assertion could not be found in the assertion store.
	ErrAssertionNotFound = vcError("specified assertion does not exist")
)

type vcError string

// Error returns the associated error message.
// This satisfies the built-in error interface.
func (e vcError) Error() string { return string(e) }

// ContextFetchError is returned when a remote JSON-LD context document could not be fetched or parsed.
// It is transient: a retry may succeed, and the failure is never cached.
type ContextFetchError struct {
	URL   string
	Cause error
}

// NewContextFetch returns a ContextFetchError for the given URL.
func NewContextFetch(url string, cause error) error {
	return &ContextFetchError{URL: url, Cause: cause}
}

func (e *ContextFetchError) Error() string {
	return fmt.Sprintf("failed to fetch context document [%s]: %s", e.URL, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ContextFetchError) Unwrap() error { return e.Cause }

// IsContextFetch returns true if the given error is a context fetch error.
func IsContextFetch(err error) bool {
	var target *ContextFetchError

	return errors.As(err, &target)
}

// MalformedDocumentError is returned when a credential document cannot be assembled or canonicalized.
// It is fatal for the document it refers to, but must not affect any other document.
type MalformedDocumentError struct {
	err error
}

// NewMalformedDocument returns a malformed-document error that wraps the given error.
func NewMalformedDocument(err error) error {
	return &MalformedDocumentError{err: err}
}

// NewMalformedDocumentf returns a malformed-document error from the given format and arguments.
func NewMalformedDocumentf(format string, a ...interface{}) error {
	return &MalformedDocumentError{err: fmt.Errorf(format, a...)}
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document: %s", e.err)
}

// Unwrap returns the wrapped error.
func (e *MalformedDocumentError) Unwrap() error { return e.err }

// IsMalformedDocument returns true if the given error is a malformed-document error.
func IsMalformedDocument(err error) bool {
	var target *MalformedDocumentError

	return errors.As(err, &target)
}

// KeyGenerationError is returned when fresh key material could not be produced.
// It aborts the operation that requested the key.
type KeyGenerationError struct {
	err error
}

// NewKeyGeneration returns a key-generation error that wraps the given error.
func NewKeyGeneration(err error) error {
	return &KeyGenerationError{err: err}
}

func (e *KeyGenerationError) Error() string {
	return fmt.Sprintf("key generation failed: %s", e.err)
}

// Unwrap returns the wrapped error.
func (e *KeyGenerationError) Unwrap() error { return e.err }

// IsKeyGeneration returns true if the given error is a key-generation error.
func IsKeyGeneration(err error) bool {
	var target *KeyGenerationError

	return errors.As(err, &target)
}

// SigningError is returned when a cryptographic signing operation failed,
// for example because of invalid key encoding. Fatal for the item being signed only.
type SigningError struct {
	err error
}

// NewSigning returns a signing error that wraps the given error.
func NewSigning(err error) error {
	return &SigningError{err: err}
}

// NewSigningf returns a signing error from the given format and arguments.
func NewSigningf(format string, a ...interface{}) error {
	return &SigningError{err: fmt.Errorf(format, a...)}
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing failed: %s", e.err)
}

// Unwrap returns the wrapped error.
func (e *SigningError) Unwrap() error { return e.err }

// IsSigning returns true if the given error is a signing error.
func IsSigning(err error) bool {
	var target *SigningError

	return errors.As(err, &target)
}
