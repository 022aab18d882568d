package grading

import (
	"fmt"

	"autograder/internal/domain"
)

// FaultError is a failure of the grading side rather than of the candidate
type FaultError struct {
	Kind    domain.FaultKind
	Program string
	Err     error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Program, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

func graderFault(program string, err error) *FaultError {
	return &FaultError{Kind: domain.FaultGrader, Program: program, Err: err}
}

func configFault(program string, err error) *FaultError {
	return &FaultError{Kind: domain.FaultConfig, Program: program, Err: err}
}
