package appointments

import (
	"context"
	"errors"

	"github.com/wolfman30/derma-voice-agent/internal/directory"
)

// Booking results reported to observers.
const (
	ResultBooked      = "booked"
	ResultConflict    = "conflict"
	ResultUnavailable = "unavailable"
	ResultNotFound    = "not_found"
	ResultError       = "error"
)

type observedStore struct {
	Store
	observe func(result string)
}

// Observe wraps store so every Book call reports its result to observe.
func Observe(store Store, observe func(result string)) Store {
	if observe == nil {
		return store
	}
	return &observedStore{Store: store, observe: observe}
}

func (s *observedStore) Book(ctx context.Context, doctorID, slot, patientName string) (*Appointment, error) {
	apt, err := s.Store.Book(ctx, doctorID, slot, patientName)
	s.observe(BookingResult(err))
	return apt, err
}

// BookingResult classifies a Book error.
func BookingResult(err error) string {
	switch {
	case err == nil:
		return ResultBooked
	case errors.Is(err, ErrSlotAlreadyBooked):
		return ResultConflict
	case errors.Is(err, ErrSlotUnavailable):
		return ResultUnavailable
	case errors.Is(err, directory.ErrDoctorNotFound):
		return ResultNotFound
	default:
		return ResultError
	}
}
