// Package apperr define la taxonomía de errores del core de sincronización.
//
// Cada tipo detallado matchea su sentinel vía errors.Is, así los callers
// (router, UI) deciden por categoría sin conocer el detalle.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

var (
	// ErrSchemaViolation: una fila remota o un payload de escritura no cumple el schema.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrNotConfigured: no hay backend (sin endpoint/credenciales). Dispara fallback a seed.
	ErrNotConfigured = errors.New("remote not configured")
	// ErrRemoteFailure: error de red/servidor en una llamada concreta.
	ErrRemoteFailure = errors.New("remote failure")
	// ErrConstraintViolation: FK a un padre inexistente o id duplicado en el store.
	ErrConstraintViolation = errors.New("constraint violation")
)

type SchemaViolationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema violation: %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("schema violation: %s.%s: %s", e.Entity, e.Field, e.Reason)
}

func (e *SchemaViolationError) Is(target error) bool { return target == ErrSchemaViolation }

type ConstraintViolationError struct {
	Entity string
	Field  string
	Ref    string
	Reason string
}

func (e *ConstraintViolationError) Error() string {
	var b strings.Builder
	b.WriteString("constraint violation: ")
	b.WriteString(e.Entity)
	if e.Field != "" {
		b.WriteString(".")
		b.WriteString(e.Field)
	}
	if e.Ref != "" {
		b.WriteString(" -> ")
		b.WriteString(e.Ref)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *ConstraintViolationError) Is(target error) bool { return target == ErrConstraintViolation }

// RemoteFailureError envuelve el error del adapter con la operación que falló.
type RemoteFailureError struct {
	Op     string
	Entity string
	ID     string
	Err    error
}

func (e *RemoteFailureError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("remote failure: %s %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("remote failure: %s %s/%s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *RemoteFailureError) Is(target error) bool { return target == ErrRemoteFailure }

func (e *RemoteFailureError) Unwrap() error { return e.Err }

func Schema(entity, field, reason string) error {
	return &SchemaViolationError{Entity: entity, Field: field, Reason: reason}
}

func Constraint(entity, field, ref, reason string) error {
	return &ConstraintViolationError{Entity: entity, Field: field, Ref: ref, Reason: reason}
}

// Remote normaliza cualquier error de adapter a RemoteFailure.
// ErrNotConfigured y errores ya clasificados pasan tal cual.
func Remote(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrRemoteFailure) {
		return err
	}
	return &RemoteFailureError{Op: op, Entity: entity, ID: id, Err: err}
}

// Unreachable: el backend no respondió (dial, DNS, timeout). Un error HTTP o de SQL no cuenta.
func Unreachable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var op *net.OpError
	if errors.As(err, &op) {
		return true
	}
	var dns *net.DNSError
	if errors.As(err, &dns) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// drivers que aplanan el error a texto
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "no such host", "dial tcp", "i/o timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
