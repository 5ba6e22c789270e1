// Package apperr is the single failure channel of the ledger, workflow, serial and
// disbursement services. Every failed precondition is reported as an *Error carrying a Kind
// and enough detail to tell which ceiling, state or permission was violated.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindStateConflict   Kind = "state_conflict"
	KindBudgetExceeded  Kind = "budget_exceeded"
	KindPermission      Kind = "permission"
	KindSeriesExhausted Kind = "series_exhausted"
)

// Sentinels for errors.Is matching on kind only.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrStateConflict   = &Error{Kind: KindStateConflict}
	ErrBudgetExceeded  = &Error{Kind: KindBudgetExceeded}
	ErrPermission      = &Error{Kind: KindPermission}
	ErrSeriesExhausted = &Error{Kind: KindSeriesExhausted}
)

type Error struct {
	Kind    Kind
	Entity  string
	Id      string
	Message string
	// Details holds the values that made the precondition fail, e.g. current status or shortfall.
	Details map[string]string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Entity != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Entity)
		if e.Id != "" {
			sb.WriteString(" ")
			sb.WriteString(e.Id)
		}
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Details[k])
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

// Is matches another *Error of the same kind when the target carries no message,
// so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" || t.Entity != "" {
		return t == e
	}
	return t.Kind == e.Kind
}

func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = fmt.Sprint(value)
	return e
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Id: fmt.Sprint(id), Message: "not found"}
}

// StateConflict reports an action that is not legal in the entity's current status.
func StateConflict(entity string, id any, current string, action string) *Error {
	e := &Error{
		Kind:    KindStateConflict,
		Entity:  entity,
		Id:      fmt.Sprint(id),
		Message: fmt.Sprintf("cannot %s in status %s", action, current),
	}
	return e.With("status", current)
}

func Conflict(entity string, id any, format string, args ...any) *Error {
	return &Error{Kind: KindStateConflict, Entity: entity, Id: fmt.Sprint(id), Message: fmt.Sprintf(format, args...)}
}

// BudgetExceeded reports a breached ceiling; requested, available and shortfall are
// decimal strings already rounded by the caller.
func BudgetExceeded(ceiling string, id any, requested, available, shortfall string) *Error {
	e := &Error{
		Kind:    KindBudgetExceeded,
		Entity:  ceiling,
		Id:      fmt.Sprint(id),
		Message: fmt.Sprintf("amount exceeds available %s by %s", ceiling, shortfall),
	}
	return e.With("requested", requested).With("available", available).With("shortfall", shortfall)
}

func Permission(userId int, required string) *Error {
	e := &Error{
		Kind:    KindPermission,
		Message: fmt.Sprintf("user %d does not hold role %s", userId, required),
	}
	return e.With("required_role", required)
}

func SeriesExhausted(scopeKey string) *Error {
	return &Error{Kind: KindSeriesExhausted, Entity: "series", Id: scopeKey, Message: "no numbers left in series"}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
