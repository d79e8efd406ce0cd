package conversation

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/derma-voice-agent/internal/appointments"
	"github.com/wolfman30/derma-voice-agent/internal/directory"
	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithFormat("error", "text", io.Discard)
}

func newTestEngine(t *testing.T) (*ScriptedEngine, *appointments.MemoryStore) {
	t.Helper()
	dir := directory.Load("", testLogger())
	store := appointments.NewMemoryStore(dir)
	return NewScriptedEngine(dir, store, testLogger()), store
}

func say(t *testing.T, e Engine, utterance string) string {
	t.Helper()
	reply, err := e.Process(context.Background(), utterance)
	require.NoError(t, err)
	return reply
}

func TestGreetingAsksForName(t *testing.T) {
	engine, _ := newTestEngine(t)

	reply := say(t, engine, "Hello, I need to see a dermatologist")

	assert.Equal(t, StepGettingName, engine.State().Step)
	assert.Contains(t, reply, "May I know your name")
}

func TestGreetingWithoutKeywordStays(t *testing.T) {
	engine, _ := newTestEngine(t)

	reply := say(t, engine, "umm")

	assert.Equal(t, StepGreeting, engine.State().Step)
	assert.Equal(t, genericGreeting, reply)
}

func TestFullBookingFlow(t *testing.T) {
	engine, store := newTestEngine(t)

	say(t, engine, "Hello, I need to see a dermatologist")

	reply := say(t, engine, "Hi, I'm Anil. I need to see a dermatologist")
	assert.Equal(t, "Nice to meet you, Anil! I can help you with dermatologist appointments. We have Dr. Sharma and Dr. Reddy available. Would you like to see their available time slots?", reply)
	assert.Equal(t, StepShowingDoctors, engine.State().Step)

	reply = say(t, engine, "Tell me Dr. Sharma's availability")
	assert.Equal(t, "Dr. Sharma is available at: 2 PM, 4:30 PM, 6 PM. Which time slot would you prefer?", reply)
	assert.Equal(t, "dr1", engine.State().SelectedDoctorID)

	reply = say(t, engine, "4:30 PM is fine")
	assert.Equal(t, "Perfect! I'm confirming your 4:30 PM appointment with Dr. Sharma for Anil. Shall I proceed with the booking?", reply)
	assert.Equal(t, StepConfirmingBooking, engine.State().Step)

	reply = say(t, engine, "Yes")
	assert.True(t, strings.HasPrefix(reply, "Appointment confirmed! Anil has been booked with Dr. Sharma at 4:30 PM."))
	assert.Contains(t, reply, "Your appointment ID is apt_")

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Anil", list[0].PatientName)
	assert.Equal(t, "dr1", list[0].DoctorID)
	assert.Equal(t, "4:30 PM", list[0].Slot)
	assert.Equal(t, initialState(), engine.State())
}

func TestGettingNameWithoutBookingKeyword(t *testing.T) {
	engine, _ := newTestEngine(t)
	say(t, engine, "hi")

	reply := say(t, engine, "my name is priya")

	assert.Equal(t, "Priya", engine.State().UserName)
	assert.Contains(t, reply, "Would you like to see available doctors?")
	assert.False(t, ShouldEnd(reply, "my name is priya"))
	assert.Equal(t, StepShowingDoctors, engine.State().Step)
}

func TestShowingDoctorsListsAll(t *testing.T) {
	engine, _ := newTestEngine(t)
	say(t, engine, "hello")
	say(t, engine, "Anil here, I need a doctor")

	reply := say(t, engine, "yes please")

	assert.Equal(t, "Dr. Sharma - Available at: 2 PM, 4:30 PM, 6 PM\nDr. Reddy - Available at: 3 PM, 3:30 PM, 5 PM\n\nWhich doctor would you prefer?", reply)
	assert.Equal(t, StepShowingDoctors, engine.State().Step)

	reply = say(t, engine, "hmm")
	assert.Equal(t, "Would you like to see Dr. Sharma's or Dr. Reddy's availability?", reply)
}

func TestShowingDoctorsHidesBookedSlots(t *testing.T) {
	engine, store := newTestEngine(t)
	_, err := store.Book(context.Background(), "dr2", "3 PM", "Someone")
	require.NoError(t, err)

	say(t, engine, "hello")
	say(t, engine, "I'm Anil, I want an appointment")
	reply := say(t, engine, "dr2 please")

	assert.Equal(t, "Dr. Reddy is available at: 3:30 PM, 5 PM. Which time slot would you prefer?", reply)
}

func TestSelectingSlot(t *testing.T) {
	engine, _ := newTestEngine(t)
	say(t, engine, "hello")
	say(t, engine, "I'm Anil, I need a dermatologist")
	say(t, engine, "reddy")

	reply := say(t, engine, "whenever works")
	assert.Equal(t, "Please specify a time slot. Dr. Reddy is available at: 3 PM, 3:30 PM, 5 PM", reply)
	assert.Equal(t, StepSelectingSlot, engine.State().Step)

	reply = say(t, engine, "how about 2 pm")
	assert.Equal(t, "I'm sorry, 2 PM is not available for Dr. Reddy. Available slots are: 3 PM, 3:30 PM, 5 PM. Please choose one of these.", reply)
	assert.Equal(t, StepSelectingSlot, engine.State().Step)

	reply = say(t, engine, "330 works")
	assert.Contains(t, reply, "your 3:30 PM appointment with Dr. Reddy for Anil")
	assert.Equal(t, "3:30 PM", engine.State().SelectedSlot)
}

func TestConfirmingBookingBranches(t *testing.T) {
	engine, store := newTestEngine(t)
	say(t, engine, "hello")
	say(t, engine, "I'm Anil, I need a dermatologist")
	say(t, engine, "sharma")
	say(t, engine, "6 pm")

	reply := say(t, engine, "hmm let me think")
	assert.Equal(t, reconfirmReply, reply)
	assert.Equal(t, StepConfirmingBooking, engine.State().Step)

	reply = say(t, engine, "no, not that one")
	assert.Equal(t, declineReply, reply)
	assert.Equal(t, StepShowingDoctors, engine.State().Step)
	assert.Zero(t, store.Len())
}

func TestSlotTakenAtConfirmation(t *testing.T) {
	engine, store := newTestEngine(t)
	say(t, engine, "hello")
	say(t, engine, "I'm Anil, I need a dermatologist")
	say(t, engine, "sharma")
	say(t, engine, "2 pm")

	_, err := store.Book(context.Background(), "dr1", "2 PM", "Other caller")
	require.NoError(t, err)

	reply := say(t, engine, "yes")
	assert.Equal(t, "I'm sorry, 2 PM with Dr. Sharma was just taken. Available slots are: 4:30 PM, 6 PM. Which one would you like instead?", reply)
	assert.Equal(t, StepSelectingSlot, engine.State().Step)
	assert.Empty(t, engine.State().SelectedSlot)
	assert.Equal(t, 1, store.Len())
}

type brokenStore struct {
	appointments.Store
}

func (brokenStore) BookedSlots(context.Context, string) (map[string]bool, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Book(context.Context, string, string, string) (*appointments.Appointment, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureResetsWithApology(t *testing.T) {
	dir := directory.Load("", testLogger())
	engine := NewScriptedEngine(dir, brokenStore{}, testLogger())
	say(t, engine, "hello")
	say(t, engine, "I'm Anil, I need a dermatologist")

	reply := say(t, engine, "sharma")
	assert.Contains(t, reply, "2 PM, 4:30 PM, 6 PM")

	say(t, engine, "4:30")
	reply = say(t, engine, "yes book it")
	assert.Equal(t, bookingFailReply, reply)
	assert.Equal(t, initialState(), engine.State())
}

func TestEmptyDirectoryReportsNoDoctors(t *testing.T) {
	dir := directory.New(nil)
	engine := NewScriptedEngine(dir, appointments.NewMemoryStore(dir), testLogger())
	say(t, engine, "hello")

	reply := say(t, engine, "I'm Anil, I need a dermatologist")

	assert.Equal(t, noDoctorsReply, reply)
	assert.Equal(t, StepGettingName, engine.State().Step)
}

func TestUnknownStepFallsBack(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.state.Step = Step("bogus")

	reply := say(t, engine, "anything")

	assert.Equal(t, fallbackReply, reply)
	assert.Equal(t, StepGreeting, engine.State().Step)
}

type fixedExtractor struct{ intent Intent }

func (f fixedExtractor) Extract(string) Intent { return f.intent }

func TestCustomExtractor(t *testing.T) {
	dir := directory.Load("", testLogger())
	engine := NewScriptedEngine(dir, appointments.NewMemoryStore(dir), testLogger(),
		WithExtractor(fixedExtractor{intent: Intent{Greeting: true, Name: "Meera"}}))

	say(t, engine, "...")

	assert.Equal(t, StepGettingName, engine.State().Step)
	assert.Equal(t, "Meera", engine.State().UserName)
}
