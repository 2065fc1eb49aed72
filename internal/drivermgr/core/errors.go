package core

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition marks calls made while the manager may not accept them.
	ErrPrecondition = errors.New("precondition violated")

	// ErrNotInitialized is returned before Initialize and after Terminate.
	ErrNotInitialized = fmt.Errorf("%w: attachment manager not initialized", ErrPrecondition)

	// ErrNotOperational is returned when the controlling system is not operational.
	ErrNotOperational = fmt.Errorf("%w: controlling system not operational", ErrPrecondition)

	// ErrAlreadyInitialized is returned by a second pool initialisation.
	ErrAlreadyInitialized = errors.New("vehicle entry pool already initialized")

	// ErrNotFound is returned for unknown vehicle names, factories or positions.
	ErrNotFound = errors.New("not found")

	// ErrAttachmentFailed is returned when a driver could not be bound to a vehicle.
	ErrAttachmentFailed = errors.New("attachment failed")

	// ErrUnsupported is returned when a factory does not support a vehicle.
	ErrUnsupported = errors.New("factory does not support vehicle")

	// ErrAdapterOperation is returned when a driver fails to enable or disable.
	ErrAdapterOperation = errors.New("adapter operation failed")

	// ErrNoAdapter is returned for requests that need a bound driver.
	ErrNoAdapter = errors.New("no adapter attached")

	// ErrUnknownPosition is returned for positions the position source does not list.
	ErrUnknownPosition = fmt.Errorf("%w: unknown position", ErrNotFound)
)
