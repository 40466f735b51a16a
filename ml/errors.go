package ml

import "errors"

// Pipeline errors. None of them are transient, so callers should not retry;
// they are wrapped with context and matched with errors.Is.
var (
	ErrSchema          = errors.New("schema error")
	ErrDataType        = errors.New("data type error")
	ErrTraining        = errors.New("training error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrIO              = errors.New("io error")
	ErrNotFound        = errors.New("artifact not found")
	ErrCorruptArtifact = errors.New("corrupt artifact")
)
