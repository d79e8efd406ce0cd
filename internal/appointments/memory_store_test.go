package appointments

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/derma-voice-agent/internal/directory"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	return NewMemoryStore(directory.Load("", nil))
}

func TestBookAddsSlotToBookedSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, doc := range directory.Load("", nil).List() {
		for _, slot := range doc.Slots {
			apt, err := store.Book(ctx, doc.ID, slot, "Anil")
			require.NoError(t, err)
			assert.Equal(t, doc.Name, apt.DoctorName)
			assert.True(t, strings.HasPrefix(apt.ID, "apt_"))
			assert.False(t, apt.BookedAt.IsZero())

			booked, err := store.BookedSlots(ctx, doc.ID)
			require.NoError(t, err)
			assert.True(t, booked[slot], "expected %s booked for %s", slot, doc.ID)
		}
	}
}

func TestBookSameSlotTwice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Book(ctx, "dr1", "4:30 PM", "Anil")
	require.NoError(t, err)

	_, err = store.Book(ctx, "dr1", "4:30 PM", "Priya")
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
	assert.Equal(t, 1, store.Len())
}

func TestBookSlotNotOffered(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Book(context.Background(), "dr1", "3 PM", "Anil")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Equal(t, 0, store.Len())
}

func TestBookUnknownDoctor(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Book(context.Background(), "dr404", "2 PM", "Anil")
	assert.ErrorIs(t, err, directory.ErrDoctorNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestBookDefaultsPatientName(t *testing.T) {
	store := newTestStore(t)

	apt, err := store.Book(context.Background(), "dr2", "5 PM", "  ")
	require.NoError(t, err)
	assert.Equal(t, DefaultPatientName, apt.PatientName)
}

func TestSameSlotDifferentDoctors(t *testing.T) {
	dir := directory.New([]directory.Doctor{
		{ID: "a", Name: "Dr. Alpha", Slots: []string{"2 PM"}},
		{ID: "b", Name: "Dr. Beta", Slots: []string{"2 PM"}},
	})
	store := NewMemoryStore(dir)
	ctx := context.Background()

	_, err := store.Book(ctx, "a", "2 PM", "One")
	require.NoError(t, err)
	_, err = store.Book(ctx, "b", "2 PM", "Two")
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
}

func TestConcurrentBookingsForOneSlot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Book(ctx, "dr1", "2 PM", "Caller"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, store.Len())
}

func TestListReturnsCopy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.Book(ctx, "dr1", "6 PM", "Anil")
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	list[0].Slot = "mutated"

	again, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "6 PM", again[0].Slot)
}
