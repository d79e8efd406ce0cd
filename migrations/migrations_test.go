package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range entries {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestAppointmentsMigrationHasSlotIndex(t *testing.T) {
	raw, err := fs.ReadFile(FS, "0001_appointments.up.sql")
	require.NoError(t, err)

	assert.Contains(t, string(raw), "ON appointments (doctor_id, slot)")
	assert.Contains(t, string(raw), "CREATE UNIQUE INDEX")
}
