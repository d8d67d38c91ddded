// Package exception defines the error types used across chunkbatch.
// Every error raised by the engine is a *BatchError tagged with the module that produced it,
// which doubles as the error taxonomy: source, transform, sink and repository faults are
// told apart by Module, and skip/retry decisions consult the flags and the type registry.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Modules used as the error taxonomy.
const (
	ModuleReader     = "reader"
	ModuleProcessor  = "processor"
	ModuleWriter     = "writer"
	ModuleRepository = "repository"
	ModuleConfig     = "config"
	ModuleLauncher   = "launcher"
	ModuleJob        = "job"
	ModuleStep       = "step"
	ModuleListener   = "listener"
)

// BatchError is the error type produced by the engine and its components.
type BatchError struct {
	// Module is the component that raised the error (see the Module* constants).
	Module string
	// Message is a short, human-readable description.
	Message string
	// OriginalErr is the wrapped cause, may be nil.
	OriginalErr error

	skippable bool
	retryable bool
}

// NewBatchError creates a BatchError.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		skippable:   isSkippable,
		retryable:   isRetryable,
	}
}

// NewBatchErrorf creates a BatchError with a formatted message.
// Trailing arguments are inspected from the end: an error becomes OriginalErr,
// then up to two bools become isRetryable and isSkippable (in that order from the end).
//
//	NewBatchErrorf("reader", "bad line %d", 7, true, false, err)
//	// message "bad line 7", skippable, not retryable, wraps err
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	args := a
	var original error
	if n := len(args); n > 0 {
		if err, ok := args[n-1].(error); ok {
			original = err
			args = args[:n-1]
		}
	}
	var flags []bool
	for len(args) > 0 && len(flags) < 2 {
		b, ok := args[len(args)-1].(bool)
		if !ok {
			break
		}
		flags = append(flags, b)
		args = args[:len(args)-1]
	}
	retryable, skippable := false, false
	if len(flags) > 0 {
		retryable = flags[0]
	}
	if len(flags) > 1 {
		skippable = flags[1]
	}
	return NewBatchError(module, fmt.Sprintf(format, args...), original, skippable, retryable)
}

// NewSourceError wraps a read fault.
func NewSourceError(message string, err error, isSkippable, isRetryable bool) *BatchError {
	return NewBatchError(ModuleReader, message, err, isSkippable, isRetryable)
}

// NewTransformError wraps an item-level processing fault.
func NewTransformError(message string, err error, isSkippable, isRetryable bool) *BatchError {
	return NewBatchError(ModuleProcessor, message, err, isSkippable, isRetryable)
}

// NewSinkError wraps a chunk write fault.
func NewSinkError(message string, err error) *BatchError {
	return NewBatchError(ModuleWriter, message, err, false, true)
}

// NewRepositoryError wraps a job repository fault. Repository errors are never skippable or retryable.
func NewRepositoryError(message string, err error) *BatchError {
	return NewBatchError(ModuleRepository, message, err, false, false)
}

// Error implements error.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *BatchError) Unwrap() error { return e.OriginalErr }

// IsRetryable reports the retryable flag.
func (e *BatchError) IsRetryable() bool { return e.retryable }

// IsSkippable reports the skippable flag.
func (e *BatchError) IsSkippable() bool { return e.skippable }

// AsBatchError returns the first *BatchError in err's chain.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// ModuleOf returns the Module of the outermost BatchError in err's chain, or "" if there is none.
func ModuleOf(err error) string {
	if be, ok := AsBatchError(err); ok {
		return be.Module
	}
	return ""
}

// IsRepositoryError reports whether err originates from the job repository.
func IsRepositoryError(err error) bool {
	return ModuleOf(err) == ModuleRepository
}

// FlaggedSkippable reports whether any BatchError in err's chain is flagged skippable.
func FlaggedSkippable(err error) bool {
	for err != nil {
		if be, ok := err.(*BatchError); ok && be.skippable {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// FlaggedRetryable reports whether any BatchError in err's chain is flagged retryable.
func FlaggedRetryable(err error) bool {
	for err != nil {
		if be, ok := err.(*BatchError); ok && be.retryable {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := AsBatchError(err); ok {
		return be.Message
	}
	return err.Error()
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]error)
)

// RegisterErrorType makes a named error kind available to configuration
// (skippable_exceptions, retryable_exceptions). It panics on an empty name or nil prototype.
func RegisterErrorType(name string, prototype error) {
	if name == "" {
		panic("exception: error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("exception: nil prototype for error type %q", name))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = prototype
}

// IsErrorTypeRegistered reports whether name was registered.
func IsErrorTypeRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// IsErrorOfType matches err against a configured kind name.
// A registered prototype is compared with errors.Is; otherwise every error in the chain
// is compared by Go type name ("*net.OpError") and by message substring.
func IsErrorOfType(err error, name string) bool {
	if err == nil || name == "" {
		return false
	}
	registryMu.RLock()
	prototype, ok := registry[name]
	registryMu.RUnlock()
	if ok && errors.Is(err, prototype) {
		return true
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		t := reflect.TypeOf(cur)
		if t.String() == name || (t.Kind() == reflect.Ptr && t.Elem().String() == name) {
			return true
		}
		if strings.Contains(cur.Error(), name) {
			return true
		}
	}
	return false
}

// IsAnyErrorOfType reports whether err matches one of names.
func IsAnyErrorOfType(err error, names []string) bool {
	for _, name := range names {
		if IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

// ErrOptimisticLockingFailure signals a concurrent modification of an execution record.
var ErrOptimisticLockingFailure = errors.New("optimistic locking failure")

// ErrDataConversion is the registered kind for malformed input records.
var ErrDataConversion = errors.New("data conversion error")

func init() {
	RegisterErrorType("OptimisticLockingFailure", ErrOptimisticLockingFailure)
	RegisterErrorType("DataConversionError", ErrDataConversion)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
	RegisterErrorType("sql.ErrConnDone", sql.ErrConnDone)
}
