package kalman

import (
	"errors"
	"fmt"
)

var (
	// ErrNumericInstability reports an innovation covariance that cannot be
	// inverted reliably. It is not recoverable by retrying the same update.
	ErrNumericInstability = errors.New("kalman: numeric instability")

	// ErrInvalidTimestampOrder reports a predict step with dt <= 0. The
	// prediction is still applied; it is a warning unless the caller decides
	// otherwise.
	ErrInvalidTimestampOrder = errors.New("kalman: non-positive time step")
)

// NumericInstabilityError carries the timestamp of the measurement whose
// update failed. It unwraps to ErrNumericInstability.
type NumericInstabilityError struct {
	Time float64
	Cond float64 // condition number estimate of S; +Inf when S is singular
}

func (e *NumericInstabilityError) Error() string {
	return fmt.Sprintf("kalman: numeric instability at t=%g: innovation covariance condition %g", e.Time, e.Cond)
}

func (e *NumericInstabilityError) Unwrap() error {
	return ErrNumericInstability
}
