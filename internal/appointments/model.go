package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSlotUnavailable is returned when the doctor does not offer the slot.
	ErrSlotUnavailable = errors.New("appointments: slot not offered by doctor")

	// ErrSlotAlreadyBooked is returned when the doctor's slot is taken.
	ErrSlotAlreadyBooked = errors.New("appointments: slot already booked")
)

// DefaultPatientName is used when a booking carries no patient name.
const DefaultPatientName = "Patient"

// Appointment is a booked doctor slot.
type Appointment struct {
	ID          string    `json:"id"`
	DoctorID    string    `json:"doctor_id"`
	DoctorName  string    `json:"doctor_name"`
	Slot        string    `json:"slot"`
	PatientName string    `json:"patient_name"`
	BookedAt    time.Time `json:"booked_at"`
}

// Store is the append-only appointment log.
type Store interface {
	// Book validates the slot against the directory and records the appointment.
	Book(ctx context.Context, doctorID, slot, patientName string) (*Appointment, error)
	// BookedSlots returns the set of slot labels already taken for doctorID.
	BookedSlots(ctx context.Context, doctorID string) (map[string]bool, error)
	// List returns every appointment in booking order.
	List(ctx context.Context) ([]Appointment, error)
}

func newAppointmentID() string {
	return "apt_" + uuid.NewString()
}

func patientNameOrDefault(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultPatientName
	}
	return name
}
