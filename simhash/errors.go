package simhash

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the sentinel wrapped by every validation failure in this
// package. Callers test for it with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// InputError describes which parameter of which operation was rejected.
type InputError struct {
	Op     string
	Param  string
	Value  any
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("simhash: %s: invalid %s %v: %s", e.Op, e.Param, e.Value, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func invalid(op, param string, value any, reason string) error {
	return &InputError{Op: op, Param: param, Value: value, Reason: reason}
}

func checkMaxDistance(op string, maxDistance int) error {
	if maxDistance < 0 || maxDistance > Bits {
		return invalid(op, "max_distance", maxDistance, "must be within [0,64]")
	}
	return nil
}

func checkRotateBits(op string, rotateBits int) error {
	if rotateBits < 1 || rotateBits > Bits-1 {
		return invalid(op, "rotate_bits", rotateBits, "must be within [1,63]")
	}
	return nil
}
