// Package conversation implements the booking dialogue: a deterministic
// state machine and LLM tool-calling backends behind one Engine contract.
package conversation

import "context"

// Engine consumes one caller utterance per turn and returns the spoken reply.
//
// The scripted engine never fails; LLM backends return an error only when the
// model provider is unreachable.
type Engine interface {
	Process(ctx context.Context, utterance string) (string, error)
}

// Step is a state of the scripted booking dialogue.
type Step string

const (
	StepGreeting          Step = "greeting"
	StepGettingName       Step = "getting_name"
	StepShowingDoctors    Step = "showing_doctors"
	StepSelectingSlot     Step = "selecting_slot"
	StepConfirmingBooking Step = "confirming_booking"
)

// State is the scripted engine's per-conversation booking state.
type State struct {
	Step             Step   `json:"step"`
	UserName         string `json:"user_name,omitempty"`
	SelectedDoctorID string `json:"selected_doctor_id,omitempty"`
	SelectedSlot     string `json:"selected_slot,omitempty"`
}

func initialState() State {
	return State{Step: StepGreeting}
}

// Greeting is the first line spoken on every call.
const Greeting = "Hello! I'm your healthcare assistant. May I know your name and how I can help you today?"
