package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrNoAvailableSlot       = errors.New("no available slot")
	ErrReservationContention = errors.New("slot reservation kept losing to concurrent writers")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidState          = errors.New("content is not in a state that allows this action")
)

// ErrContentNotFound is the NotFound raised for the content row itself, as
// opposed to its target profile or slots.
var ErrContentNotFound = fmt.Errorf("content %w", ErrNotFound)
