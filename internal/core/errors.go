/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes errors from the sync engine and its collaborators.
type ErrorKind string

const (
	ErrNotFound                ErrorKind = "not-found"
	ErrConflict                ErrorKind = "conflict"
	ErrLimitReached            ErrorKind = "limit-reached"
	ErrAuthFailure             ErrorKind = "auth-failure"
	ErrTransportFailure        ErrorKind = "transport-failure"
	ErrConfiguration           ErrorKind = "configuration"
	ErrClassificationAmbiguity ErrorKind = "classification-ambiguity"
	errUnknown                 ErrorKind = ""
)

// Error is the error type used by RemoteDirectory and LocalStore
// implementations as well as the sync engine itself.
type Error struct {
	Kind ErrorKind
	//The operation that failed, e.g. "create" or "list-members".
	Op string
	//The remote collection or local entry kind that the operation was
	//performed on, and the key of the affected object (if any).
	ResourceType string
	Key          string
	//Only meaningful for ErrAuthFailure and ErrTransportFailure. A transient
	//error may go away when the operation is retried later.
	Transient bool
	Cause     error
}

// Error implements the builtin/error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString("cannot ")
		b.WriteString(e.Op)
		if e.ResourceType != "" {
			b.WriteString(" ")
			b.WriteString(e.ResourceType)
		}
		if e.Key != "" {
			fmt.Fprintf(&b, " %q", e.Key)
		}
		b.WriteString(": ")
	}
	if e.Cause == nil {
		b.WriteString(string(e.Kind))
	} else {
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap implements the interface used by errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an *Error. The cause may be nil.
func NewError(kind ErrorKind, op, resourceType, key string, cause error) *Error {
	return &Error{Kind: kind, Op: op, ResourceType: resourceType, Key: key, Cause: cause}
}

// Errorf builds an *Error without operation context.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// KindOf returns the ErrorKind of the outermost *Error in the chain, or ""
// if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return errUnknown
}

// IsKind is a shorthand for KindOf(err) == kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient returns whether retrying the failed operation later could
// succeed.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Transient
	}
	return false
}

// UserMessage renders a human-readable description of the error for
// interactive callers. Exactly one message exists per ErrorKind.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "An unexpected error occurred: " + err.Error()
	}
	switch e.Kind {
	case ErrNotFound:
		return "The object does not exist in the cloud directory."
	case ErrConflict:
		return "An object with the same name already exists in the cloud directory."
	case ErrLimitReached:
		return "The user limit of the cloud directory account has been reached. Release licenses or raise the limit, then retry."
	case ErrAuthFailure:
		if e.Transient {
			return "Waiting for the cloud directory to authorize the connection. This can take some minutes after granting access."
		}
		return "The cloud directory rejected the credentials. Please check the service account key and the admin account."
	case ErrTransportFailure:
		return "The cloud directory could not be reached. Please check the network connection and retry."
	case ErrConfiguration:
		return "The synchronization configuration is invalid: " + causeMessage(e)
	case ErrClassificationAmbiguity:
		return "A directory object could not be classified as user or group: " + causeMessage(e)
	default:
		return "An unexpected error occurred: " + err.Error()
	}
}

func causeMessage(e *Error) string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return e.Cause.Error()
}
