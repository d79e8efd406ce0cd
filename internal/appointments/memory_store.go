package appointments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/derma-voice-agent/internal/directory"
)

// MemoryStore keeps appointments in process memory. Contents are lost on restart.
type MemoryStore struct {
	dir *directory.Directory
	now func() time.Time

	mu           sync.RWMutex
	appointments []Appointment
}

// NewMemoryStore creates an empty in-memory store validated against dir.
func NewMemoryStore(dir *directory.Directory) *MemoryStore {
	if dir == nil {
		panic("appointments: directory required")
	}
	return &MemoryStore{
		dir: dir,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Book records an appointment. The availability check and the append happen
// under one lock so two callers cannot take the same slot.
func (s *MemoryStore) Book(ctx context.Context, doctorID, slot, patientName string) (*Appointment, error) {
	doc, err := s.dir.Find(doctorID)
	if err != nil {
		return nil, err
	}
	if !doc.OffersSlot(slot) {
		return nil, fmt.Errorf("%w: %s with %s", ErrSlotUnavailable, slot, doc.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, apt := range s.appointments {
		if apt.DoctorID == doc.ID && apt.Slot == slot {
			return nil, fmt.Errorf("%w: %s with %s", ErrSlotAlreadyBooked, slot, doc.Name)
		}
	}

	apt := Appointment{
		ID:          newAppointmentID(),
		DoctorID:    doc.ID,
		DoctorName:  doc.Name,
		Slot:        slot,
		PatientName: patientNameOrDefault(patientName),
		BookedAt:    s.now(),
	}
	s.appointments = append(s.appointments, apt)
	return &apt, nil
}

// BookedSlots returns the slots taken for doctorID.
func (s *MemoryStore) BookedSlots(ctx context.Context, doctorID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	booked := make(map[string]bool)
	for _, apt := range s.appointments {
		if apt.DoctorID == doctorID {
			booked[apt.Slot] = true
		}
	}
	return booked, nil
}

// List returns a copy of all appointments.
func (s *MemoryStore) List(ctx context.Context) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Appointment(nil), s.appointments...), nil
}

// Len returns the number of appointments.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.appointments)
}
