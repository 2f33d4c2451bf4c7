package models

import (
	"errors"
	"fmt"
)

type FailureKind string

const (
	// IOFailure is local to one package: its verdict degrades to unknown.
	IOFailure FailureKind = "io_failure"
	// TransportFailure and ProtocolFailure abort the whole invocation.
	TransportFailure FailureKind = "transport_failure"
	ProtocolFailure  FailureKind = "protocol_failure"
)

type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Err.Error())
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure classifies err. An error that already carries a kind keeps it.
func NewFailure(kind FailureKind, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return &Failure{Kind: kind, Err: err}
}

// KindOf returns the kind of the first Failure in err's chain, or "".
func KindOf(err error) FailureKind {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return ""
}

func IsFatal(err error) bool {
	kind := KindOf(err)
	return kind == TransportFailure || kind == ProtocolFailure
}
