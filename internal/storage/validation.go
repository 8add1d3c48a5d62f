// Package storage provides the SQLite persistence layer for pipeline runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/cobertura/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidRun   = errors.New("invalid run")
	ErrInvalidKind  = errors.New("invalid stats kind")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRun validates a run before it is stored.
func validateRun(run *model.Run) error {
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if strings.TrimSpace(run.StackName) == "" {
		return fmt.Errorf("%w: missing stack name", ErrInvalidRun)
	}
	if run.PixelArea < 0 {
		return fmt.Errorf("%w: negative pixel area", ErrInvalidRun)
	}
	return nil
}

// validateStatus ensures status is a known run status.
func validateStatus(status model.RunStatus) error {
	switch status {
	case model.RunRunning, model.RunCompleted, model.RunPartial, model.RunFailed:
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRun, status)
	}
}

// validateKind ensures kind names a stored statistics series.
func validateKind(kind string) error {
	switch kind {
	case model.KindTransition, model.KindReduced:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

// validateCodeGrid ensures a grid has consistent dimensions.
func validateCodeGrid(g model.CodeGrid, what string) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
