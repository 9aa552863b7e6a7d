package assistant

import (
	"errors"
	"fmt"

	"github.com/antoniostano/kirana/internal/reliability"
)

// ErrEmptyMessage is a caller error: the message was empty or whitespace only.
var ErrEmptyMessage = errors.New("assistant: message is empty")

// Kind separates backend trouble from output that did not match the contract.
type Kind string

const (
	KindService Kind = "service"
	KindSchema  Kind = "schema"
)

// Failure is returned by Interpret when no usable result could be produced.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("assistant %s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether resubmitting the same message might succeed.
func (f *Failure) Retryable() bool {
	if f.Kind == KindSchema {
		return true
	}
	return reliability.IsRetryable(f.Err)
}

// IsFailure reports whether err carries a *Failure and returns it.
func IsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func serviceFailure(err error) *Failure { return &Failure{Kind: KindService, Err: err} }

func schemaFailure(format string, args ...any) *Failure {
	return &Failure{Kind: KindSchema, Err: fmt.Errorf(format, args...)}
}
