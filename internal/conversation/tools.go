package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/derma-voice-agent/internal/appointments"
	"github.com/wolfman30/derma-voice-agent/internal/directory"
)

// Tool names exposed to model backends.
const (
	ToolGetAvailableDoctors = "get_available_doctors"
	ToolGetDoctorSlots      = "get_doctor_slots"
	ToolBookAppointment     = "book_appointment"
)

// ToolParam is a single string argument of a tool.
type ToolParam struct {
	Name        string
	Description string
}

// ToolSpec describes a tool in a vendor-neutral way. All params are required strings.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

// Toolbox executes the booking tools against the directory and store.
// Results are plain sentences the model can relay to the caller.
type Toolbox struct {
	dir   *directory.Directory
	store appointments.Store
}

// NewToolbox creates a Toolbox.
func NewToolbox(dir *directory.Directory, store appointments.Store) *Toolbox {
	if dir == nil {
		dir = directory.New(nil)
	}
	return &Toolbox{dir: dir, store: store}
}

// Specs lists the tools in a stable order.
func (t *Toolbox) Specs() []ToolSpec {
	return []ToolSpec{
		{
			Name:        ToolGetAvailableDoctors,
			Description: "Get a list of available dermatologists with their specialties",
		},
		{
			Name:        ToolGetDoctorSlots,
			Description: "Get available time slots for a specific doctor",
			Params: []ToolParam{
				{Name: "doctor_id", Description: "The doctor ID, e.g. dr1 or dr2"},
			},
		},
		{
			Name:        ToolBookAppointment,
			Description: "Book an appointment with a doctor once the caller has confirmed the details",
			Params: []ToolParam{
				{Name: "doctor_id", Description: "The doctor ID, e.g. dr1"},
				{Name: "slot", Description: "The time slot exactly as listed, e.g. 4:30 PM"},
				{Name: "patient_name", Description: "The caller's name"},
			},
		},
	}
}

// Call runs the named tool. Unknown tools and bad arguments produce a
// message for the model rather than an error.
func (t *Toolbox) Call(ctx context.Context, name string, args map[string]any) string {
	switch name {
	case ToolGetAvailableDoctors:
		return t.availableDoctors()
	case ToolGetDoctorSlots:
		return t.doctorSlots(ctx, stringArg(args, "doctor_id"))
	case ToolBookAppointment:
		return t.book(ctx, stringArg(args, "doctor_id"), stringArg(args, "slot"), stringArg(args, "patient_name"))
	default:
		return fmt.Sprintf("Unknown tool %q.", name)
	}
}

func (t *Toolbox) availableDoctors() string {
	doctors := t.dir.List()
	if len(doctors) == 0 {
		return "No doctors are available right now."
	}
	parts := make([]string, len(doctors))
	for i, doc := range doctors {
		parts[i] = fmt.Sprintf("%s (ID: %s) - %s", doc.Name, doc.ID, doc.Specialty)
	}
	return "Available doctors: " + strings.Join(parts, ", ")
}

func (t *Toolbox) doctorSlots(ctx context.Context, doctorID string) string {
	doc, err := t.dir.Find(doctorID)
	if err != nil {
		return fmt.Sprintf("Doctor with ID %s not found. Available doctor IDs: %s", doctorID, strings.Join(t.doctorIDs(), ", "))
	}
	booked, err := t.store.BookedSlots(ctx, doc.ID)
	if err != nil {
		return "Could not load availability. Please try again."
	}
	available := make([]string, 0, len(doc.Slots))
	for _, slot := range doc.Slots {
		if !booked[slot] {
			available = append(available, slot)
		}
	}
	if len(available) == 0 {
		return fmt.Sprintf("%s has no available slots today.", doc.Name)
	}
	return fmt.Sprintf("%s is available at: %s", doc.Name, strings.Join(available, ", "))
}

func (t *Toolbox) book(ctx context.Context, doctorID, slot, patientName string) string {
	if doctorID == "" || slot == "" || patientName == "" {
		return "Please provide doctor ID, time slot, and patient name."
	}
	if normalized, ok := NormalizeSlot(slot); ok {
		slot = normalized
	}

	apt, err := t.store.Book(ctx, doctorID, slot, patientName)
	switch {
	case err == nil:
		return fmt.Sprintf("Appointment confirmed! %s has been booked with %s at %s. Your appointment ID is %s.",
			apt.PatientName, apt.DoctorName, apt.Slot, apt.ID)
	case errors.Is(err, directory.ErrDoctorNotFound):
		return fmt.Sprintf("Doctor with ID %s not found.", doctorID)
	case errors.Is(err, appointments.ErrSlotUnavailable):
		doc, _ := t.dir.Find(doctorID)
		return fmt.Sprintf("%s is not available for %s. Available slots: %s", slot, doc.Name, strings.Join(doc.Slots, ", "))
	case errors.Is(err, appointments.ErrSlotAlreadyBooked):
		doc, _ := t.dir.Find(doctorID)
		return fmt.Sprintf("The %s slot with %s is already booked.", slot, doc.Name)
	default:
		return "Error booking appointment. Please try again."
	}
}

func (t *Toolbox) doctorIDs() []string {
	doctors := t.dir.List()
	ids := make([]string, len(doctors))
	for i, doc := range doctors {
		ids[i] = doc.ID
	}
	return ids
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// systemPrompt is shared by the model backends.
const systemPrompt = `You are a helpful and friendly voice assistant for a dermatology clinic. Your role is to:
1. Greet patients warmly and ask for their name
2. Help them find available dermatologists and appointment slots
3. Book appointments when requested
4. Always confirm the doctor, time and patient name before booking

Guidelines:
- Use the tools to look up doctors and current availability; never invent slots
- If a slot is unavailable, suggest alternatives
- Keep replies short and speakable: no markdown, lists or emojis
- When a booking succeeds, read back the appointment ID and thank the patient`
