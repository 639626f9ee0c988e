package labflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEntityNotFound       = errors.New("entity not found")
	ErrOutOfOrderEntry      = errors.New("out of order entry")
	ErrIncompleteParameters = errors.New("incomplete parameters")
	ErrInvalidReworkTarget  = errors.New("invalid rework target")
	ErrBarcodeGeneration    = errors.New("barcode generation failed")
	ErrConcurrencyConflict  = errors.New("concurrency conflict")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrItemClosed           = errors.New("acceptance item is closed")
	ErrInvalidInput         = errors.New("invalid input")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidDefinition    = errors.New("invalid workflow definition")

	// ErrDuplicateBarcode is returned by stores when the barcode unique key is hit.
	ErrDuplicateBarcode = errors.New("duplicate barcode")
)

type ErrorKind string

const (
	KindNotFound             ErrorKind = "not_found"
	KindOutOfOrderEntry      ErrorKind = "out_of_order_entry"
	KindIncompleteParameters ErrorKind = "incomplete_parameters"
	KindInvalidReworkTarget  ErrorKind = "invalid_rework_target"
	KindBarcodeGeneration    ErrorKind = "barcode_generation"
	KindConcurrencyConflict  ErrorKind = "concurrency_conflict"
	KindInvalidTransition    ErrorKind = "invalid_transition"
	KindItemClosed           ErrorKind = "item_closed"
	KindInvalidInput         ErrorKind = "invalid_input"
	KindPermissionDenied     ErrorKind = "permission_denied"
	KindInvalidDefinition    ErrorKind = "invalid_definition"
	KindInternal             ErrorKind = "internal"
)

// KindOf classifies an error returned by the engine.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEntityNotFound):
		return KindNotFound
	case errors.Is(err, ErrOutOfOrderEntry):
		return KindOutOfOrderEntry
	case errors.Is(err, ErrIncompleteParameters):
		return KindIncompleteParameters
	case errors.Is(err, ErrInvalidReworkTarget):
		return KindInvalidReworkTarget
	case errors.Is(err, ErrBarcodeGeneration):
		return KindBarcodeGeneration
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrItemClosed):
		return KindItemClosed
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrInvalidDefinition):
		return KindInvalidDefinition
	default:
		return KindInternal
	}
}

type NotFoundError struct {
	Entity string
	ID     string
}

func newNotFound(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrEntityNotFound }

type OutOfOrderReason string

const (
	ReasonWrongSection       OutOfOrderReason = "wrong_section"
	ReasonInProgress         OutOfOrderReason = "in_progress"
	ReasonWorkflowComplete   OutOfOrderReason = "workflow_complete"
	ReasonSampleNotCollected OutOfOrderReason = "sample_not_collected"
)

type OutOfOrderEntryError struct {
	ItemID         int64
	SectionID      string
	Reason         OutOfOrderReason
	Expected       []string
	CurrentSection string
}

func (e *OutOfOrderEntryError) Error() string {
	switch e.Reason {
	case ReasonInProgress:
		return fmt.Sprintf("item %d is still processing at section %q, finish or reject it first",
			e.ItemID, e.CurrentSection)
	case ReasonWorkflowComplete:
		return fmt.Sprintf("item %d already completed every stage of its workflow", e.ItemID)
	case ReasonSampleNotCollected:
		return fmt.Sprintf("item %d has no active sample, scan at sample collection first", e.ItemID)
	default:
		return fmt.Sprintf("item %d cannot enter section %q, expected one of [%s]",
			e.ItemID, e.SectionID, strings.Join(e.Expected, ", "))
	}
}

func (e *OutOfOrderEntryError) Unwrap() error { return ErrOutOfOrderEntry }

// IncompleteParametersError lists every offending field, not just the first.
type IncompleteParametersError struct {
	StateID int64
	Missing []string
	Invalid map[string]string
}

func (e *IncompleteParametersError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		invalid := make([]string, 0, len(e.Invalid))
		for _, name := range sortedKeys(e.Invalid) {
			invalid = append(invalid, fmt.Sprintf("%s (%s)", name, e.Invalid[name]))
		}
		parts = append(parts, "invalid: "+strings.Join(invalid, ", "))
	}

	return fmt.Sprintf("state %d: incomplete parameters: %s", e.StateID, strings.Join(parts, "; "))
}

func (e *IncompleteParametersError) Unwrap() error { return ErrIncompleteParameters }

// Fields returns every offending field name, sorted.
func (e *IncompleteParametersError) Fields() []string {
	seen := make(map[string]struct{}, len(e.Missing)+len(e.Invalid))
	for _, name := range e.Missing {
		seen[name] = struct{}{}
	}
	for name := range e.Invalid {
		seen[name] = struct{}{}
	}

	return sortedKeys(seen)
}

func (e *IncompleteParametersError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

type InvalidReworkTargetError struct {
	StateID int64
	Target  ReworkTarget
	Allowed []string
}

func (e *InvalidReworkTargetError) Error() string {
	return fmt.Sprintf("state %d: rework target %s is not an earlier section (allowed: [%s] or %s)",
		e.StateID, e.Target, strings.Join(e.Allowed, ", "), ReworkKindSampleCollection)
}

func (e *InvalidReworkTargetError) Unwrap() error { return ErrInvalidReworkTarget }

type BarcodeGenerationError struct {
	Group    string
	Attempts int
	Last     string
}

func (e *BarcodeGenerationError) Error() string {
	return fmt.Sprintf("barcode group %q: no unique barcode after %d attempts (last %q)",
		e.Group, e.Attempts, e.Last)
}

func (e *BarcodeGenerationError) Unwrap() error { return ErrBarcodeGeneration }

// ConcurrencyConflictError tells the caller to re-fetch the position and retry once.
type ConcurrencyConflictError struct {
	Op  string
	Err error
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: concurrent modification, retry", e.Op)
	}

	return fmt.Sprintf("%s: concurrent modification, retry: %v", e.Op, e.Err)
}

func (e *ConcurrencyConflictError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConcurrencyConflict}
	}

	return []error{ErrConcurrencyConflict, e.Err}
}

type InvalidTransitionError struct {
	StateID int64
	From    StateStatus
	Op      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("state %d: cannot %s from status %q", e.StateID, e.Op, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

type ItemClosedError struct {
	ItemID int64
	Status ItemStatus
}

func (e *ItemClosedError) Error() string {
	return fmt.Sprintf("acceptance item %d is %s", e.ItemID, e.Status)
}

func (e *ItemClosedError) Unwrap() error { return ErrItemClosed }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
