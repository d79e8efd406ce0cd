package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/derma-voice-agent/internal/appointments"
	"github.com/wolfman30/derma-voice-agent/internal/directory"
	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

const (
	genericGreeting  = "Hello! I'm your healthcare assistant. How can I help you today?"
	fallbackReply    = "I'm sorry, I didn't understand. How can I help you with booking a dermatologist appointment?"
	noDoctorsReply   = "I'm sorry, no doctors are available right now. Please try calling again later."
	declineReply     = "No problem! Would you like to choose a different time slot or doctor?"
	reconfirmReply   = "Please confirm if you'd like me to book this appointment. Say 'yes' to proceed or 'no' to make changes."
	bookingFailReply = "I'm sorry, I couldn't complete the booking right now. Let's start over. How can I help you today?"
)

// ScriptedEngine is the deterministic booking dialogue. It is not safe for
// concurrent use; the session registry serialises turns per call.
type ScriptedEngine struct {
	dir       *directory.Directory
	store     appointments.Store
	extractor IntentExtractor
	logger    *logging.Logger
	state     State
}

// ScriptedOption customises a ScriptedEngine.
type ScriptedOption func(*ScriptedEngine)

// WithExtractor replaces the keyword intent extractor.
func WithExtractor(e IntentExtractor) ScriptedOption {
	return func(s *ScriptedEngine) {
		if e != nil {
			s.extractor = e
		}
	}
}

// NewScriptedEngine creates an engine in the greeting step.
func NewScriptedEngine(dir *directory.Directory, store appointments.Store, logger *logging.Logger, opts ...ScriptedOption) *ScriptedEngine {
	if dir == nil {
		dir = directory.New(nil)
	}
	if store == nil {
		panic("conversation: appointment store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &ScriptedEngine{
		dir:       dir,
		store:     store,
		extractor: NewKeywordExtractor(dir),
		logger:    logger,
		state:     initialState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns a snapshot of the dialogue state.
func (e *ScriptedEngine) State() State {
	return e.state
}

// Process implements Engine. It never returns an error.
func (e *ScriptedEngine) Process(ctx context.Context, utterance string) (string, error) {
	intent := e.extractor.Extract(utterance)

	switch e.state.Step {
	case StepGreeting:
		return e.greet(intent), nil
	case StepGettingName:
		return e.takeName(intent), nil
	case StepShowingDoctors:
		return e.showDoctors(ctx, intent), nil
	case StepSelectingSlot:
		return e.selectSlot(ctx, intent), nil
	case StepConfirmingBooking:
		return e.confirm(ctx, intent), nil
	default:
		e.state = initialState()
		return fallbackReply, nil
	}
}

func (e *ScriptedEngine) greet(intent Intent) string {
	if !intent.Greeting {
		return genericGreeting
	}
	if intent.Name != "" {
		e.state.UserName = intent.Name
	}
	e.state.Step = StepGettingName
	return Greeting
}

func (e *ScriptedEngine) takeName(intent Intent) string {
	if intent.Name != "" {
		e.state.UserName = intent.Name
	}
	if e.dir.Len() == 0 {
		return noDoctorsReply
	}
	e.state.Step = StepShowingDoctors

	if !intent.Booking {
		return "Thanks! I can help you book appointments with our dermatologists. Would you like to see available doctors?"
	}
	greeting := "Nice to meet you"
	if e.state.UserName != "" {
		greeting += ", " + e.state.UserName
	}
	return fmt.Sprintf("%s! I can help you with dermatologist appointments. We have %s available. Would you like to see their available time slots?",
		greeting, strings.Join(e.dir.Names(), " and "))
}

func (e *ScriptedEngine) showDoctors(ctx context.Context, intent Intent) string {
	if e.dir.Len() == 0 {
		return noDoctorsReply
	}

	if intent.DoctorID != "" {
		doc, err := e.dir.Find(intent.DoctorID)
		if err == nil {
			available := e.availableSlots(ctx, doc)
			if len(available) == 0 {
				return fmt.Sprintf("I'm sorry, %s has no available slots today. Would you like to see another doctor's availability?", doc.Name)
			}
			e.state.SelectedDoctorID = doc.ID
			e.state.Step = StepSelectingSlot
			return fmt.Sprintf("%s is available at: %s. Which time slot would you prefer?", doc.Name, strings.Join(available, ", "))
		}
	}

	if intent.Show {
		lines := make([]string, 0, e.dir.Len())
		for _, doc := range e.dir.List() {
			lines = append(lines, fmt.Sprintf("%s - Available at: %s", doc.Name, strings.Join(doc.Slots, ", ")))
		}
		return strings.Join(lines, "\n") + "\n\nWhich doctor would you prefer?"
	}

	names := e.dir.Names()
	for i, name := range names {
		names[i] = name + "'s"
	}
	return fmt.Sprintf("Would you like to see %s availability?", strings.Join(names, " or "))
}

func (e *ScriptedEngine) selectSlot(ctx context.Context, intent Intent) string {
	doc, err := e.dir.Find(e.state.SelectedDoctorID)
	if err != nil {
		e.state = initialState()
		return fallbackReply
	}
	available := e.availableSlots(ctx, doc)

	if !intent.HasTime {
		return fmt.Sprintf("Please specify a time slot. %s is available at: %s", doc.Name, strings.Join(available, ", "))
	}
	if !containsSlot(available, intent.Slot) {
		return fmt.Sprintf("I'm sorry, %s is not available for %s. Available slots are: %s. Please choose one of these.",
			intent.Slot, doc.Name, strings.Join(available, ", "))
	}

	e.state.SelectedSlot = intent.Slot
	e.state.Step = StepConfirmingBooking
	forWhom := ""
	if e.state.UserName != "" {
		forWhom = " for " + e.state.UserName
	}
	return fmt.Sprintf("Perfect! I'm confirming your %s appointment with %s%s. Shall I proceed with the booking?", intent.Slot, doc.Name, forWhom)
}

func (e *ScriptedEngine) confirm(ctx context.Context, intent Intent) string {
	switch {
	case intent.Affirm && !intent.Negate:
		return e.book(ctx)
	case intent.Negate:
		e.state.SelectedSlot = ""
		e.state.Step = StepShowingDoctors
		return declineReply
	default:
		return reconfirmReply
	}
}

func (e *ScriptedEngine) book(ctx context.Context) string {
	apt, err := e.store.Book(ctx, e.state.SelectedDoctorID, e.state.SelectedSlot, e.state.UserName)
	if err != nil {
		if errors.Is(err, appointments.ErrSlotAlreadyBooked) {
			return e.slotTaken(ctx)
		}
		e.logger.Error("booking failed", "doctor_id", e.state.SelectedDoctorID, "slot", e.state.SelectedSlot, "error", err)
		e.state = initialState()
		return bookingFailReply
	}

	who := "You have"
	if e.state.UserName != "" {
		who = e.state.UserName + " has"
	}
	e.logger.Info("appointment booked", "appointment_id", apt.ID, "doctor_id", apt.DoctorID, "slot", apt.Slot)
	e.state = initialState()
	return fmt.Sprintf("Appointment confirmed! %s been booked with %s at %s. Your appointment ID is %s. Thank you for choosing our clinic!",
		who, apt.DoctorName, apt.Slot, apt.ID)
}

func (e *ScriptedEngine) slotTaken(ctx context.Context) string {
	taken := e.state.SelectedSlot
	e.state.SelectedSlot = ""

	doc, err := e.dir.Find(e.state.SelectedDoctorID)
	if err != nil {
		e.state = initialState()
		return fallbackReply
	}
	available := e.availableSlots(ctx, doc)
	if len(available) == 0 {
		e.state.SelectedDoctorID = ""
		e.state.Step = StepShowingDoctors
		return fmt.Sprintf("I'm sorry, %s with %s was just taken and there are no other slots left today. Would you like to see another doctor's availability?", taken, doc.Name)
	}
	e.state.Step = StepSelectingSlot
	return fmt.Sprintf("I'm sorry, %s with %s was just taken. Available slots are: %s. Which one would you like instead?", taken, doc.Name, strings.Join(available, ", "))
}

// availableSlots is the doctor's offered slots minus those already booked.
// A store failure is logged and treated as nothing booked; the store still
// rejects conflicts at booking time.
func (e *ScriptedEngine) availableSlots(ctx context.Context, doc directory.Doctor) []string {
	booked, err := e.store.BookedSlots(ctx, doc.ID)
	if err != nil {
		e.logger.Warn("failed to load booked slots", "doctor_id", doc.ID, "error", err)
		booked = nil
	}
	available := make([]string, 0, len(doc.Slots))
	for _, slot := range doc.Slots {
		if !booked[slot] {
			available = append(available, slot)
		}
	}
	return available
}

func containsSlot(slots []string, slot string) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}
