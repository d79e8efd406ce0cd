package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/derma-voice-agent/internal/directory"
)

var appointmentsTracer = otel.Tracer("dermavoice.internal.appointments")

const uniqueViolation = "23505"

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists appointments. The unique (doctor_id, slot) index
// makes the availability check atomic across processes.
type PostgresStore struct {
	db  pgxQuerier
	dir *directory.Directory
}

// NewPostgresStore creates a store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool, dir *directory.Directory) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return newPostgresStoreWithQuerier(pool, dir)
}

func newPostgresStoreWithQuerier(db pgxQuerier, dir *directory.Directory) *PostgresStore {
	if dir == nil {
		panic("appointments: directory required")
	}
	return &PostgresStore{db: db, dir: dir}
}

// Book inserts the appointment row.
func (s *PostgresStore) Book(ctx context.Context, doctorID, slot, patientName string) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("dermavoice.doctor_id", doctorID),
		attribute.String("dermavoice.slot", slot),
	)

	doc, err := s.dir.Find(doctorID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !doc.OffersSlot(slot) {
		return nil, fmt.Errorf("%w: %s with %s", ErrSlotUnavailable, slot, doc.Name)
	}

	apt := Appointment{
		ID:          newAppointmentID(),
		DoctorID:    doc.ID,
		DoctorName:  doc.Name,
		Slot:        slot,
		PatientName: patientNameOrDefault(patientName),
	}
	query := `
		INSERT INTO appointments (id, doctor_id, doctor_name, slot, patient_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING booked_at
	`
	var bookedAt time.Time
	if err := s.db.QueryRow(ctx, query,
		apt.ID,
		apt.DoctorID,
		apt.DoctorName,
		apt.Slot,
		apt.PatientName,
	).Scan(&bookedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s with %s", ErrSlotAlreadyBooked, slot, doc.Name)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: insert failed: %w", err)
	}
	apt.BookedAt = bookedAt.UTC()
	return &apt, nil
}

// BookedSlots returns the slots taken for doctorID.
func (s *PostgresStore) BookedSlots(ctx context.Context, doctorID string) (map[string]bool, error) {
	rows, err := s.db.Query(ctx, `SELECT slot FROM appointments WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("appointments: select booked slots: %w", err)
	}
	defer rows.Close()

	booked := make(map[string]bool)
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("appointments: scan slot: %w", err)
		}
		booked[slot] = true
	}
	return booked, rows.Err()
}

// List returns all appointments ordered by booking time.
func (s *PostgresStore) List(ctx context.Context) ([]Appointment, error) {
	query := `
		SELECT id, doctor_id, doctor_name, slot, patient_name, booked_at
		FROM appointments
		ORDER BY booked_at
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var apt Appointment
		if err := rows.Scan(&apt.ID, &apt.DoctorID, &apt.DoctorName, &apt.Slot, &apt.PatientName, &apt.BookedAt); err != nil {
			return nil, fmt.Errorf("appointments: scan appointment: %w", err)
		}
		out = append(out, apt)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
