package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/doctor-availability-scheduling/internal/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// conn prefers the transaction opened by WithinDayScope.
func (r *PgRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Helpers

const templateCols = `id, doctor_id, day_of_week, start_time, end_time, is_available, created_at`

const appointmentCols = `id, patient_id, doctor_id, appointment_date, start_time, end_time,
	status, reason, notes, version, created_at, updated_at`

func scanTemplate(row pgx.Row) (*SlotTemplate, error) {
	var t SlotTemplate

	err := row.Scan(
		&t.ID,
		&t.DoctorID,
		&t.DayOfWeek,
		&t.StartTime,
		&t.EndTime,
		&t.IsAvailable,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.AppointmentDate,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.Reason,
		&a.Notes,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.AppointmentDate = DateOf(a.AppointmentDate)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) ReplaceTemplates(ctx context.Context, doctorID string, templates []SlotTemplate) ([]SlotTemplate, error) {
	prepared, err := prepareTemplates(doctorID, templates, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var stored []SlotTemplate
	err = db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context) error {
		q := r.conn(ctx)

		if _, err := q.Exec(ctx, `DELETE FROM availability_templates WHERE doctor_id = $1`, doctorID); err != nil {
			return fmt.Errorf("delete templates: %w", err)
		}

		stored = make([]SlotTemplate, 0, len(prepared))
		for _, t := range prepared {
			row := q.QueryRow(ctx, `
				INSERT INTO availability_templates (id, doctor_id, day_of_week, start_time, end_time, is_available, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING `+templateCols,
				t.ID, t.DoctorID, t.DayOfWeek, t.StartTime, t.EndTime, t.IsAvailable, t.CreatedAt)

			s, err := scanTemplate(row)
			if err != nil {
				return fmt.Errorf("insert template: %w", err)
			}
			stored = append(stored, *s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortTemplates(stored)
	return stored, nil
}

func (r *PgRepository) ListTemplates(ctx context.Context, doctorID string, filter TemplateFilter) ([]SlotTemplate, error) {
	sql := `SELECT ` + templateCols + ` FROM availability_templates WHERE doctor_id = $1`
	args := []any{doctorID}

	if filter.DayOfWeek != nil {
		args = append(args, *filter.DayOfWeek)
		sql += fmt.Sprintf(" AND day_of_week = $%d", len(args))
	}
	if filter.OnlyAvailable {
		sql += " AND is_available"
	}
	sql += " ORDER BY day_of_week, start_time"

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var result []SlotTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	p, err := prepareAppointment(a, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, start_time, end_time,
			status, reason, notes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentCols,
		p.ID, p.PatientID, p.DoctorID, p.AppointmentDate, p.StartTime, p.EndTime,
		p.Status, p.Reason, p.Notes, p.Version)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, q AppointmentQuery) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.ParticipantID != "" {
		p := arg(q.ParticipantID)
		where = append(where, fmt.Sprintf("(patient_id = %s OR doctor_id = %s)", p, p))
	}
	if q.PatientID != "" {
		where = append(where, "patient_id = "+arg(q.PatientID))
	}
	if q.DoctorID != "" {
		where = append(where, "doctor_id = "+arg(q.DoctorID))
	}
	if q.From != nil {
		where = append(where, "appointment_date >= "+arg(DateOf(*q.From)))
	}
	if q.To != nil {
		where = append(where, "appointment_date <= "+arg(DateOf(*q.To)))
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}

	sql := `SELECT ` + appointmentCols + ` FROM appointments`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY appointment_date, start_time, created_at"
	if q.Limit > 0 {
		sql += " LIMIT " + arg(q.Limit)
	}
	if q.Offset > 0 {
		sql += " OFFSET " + arg(q.Offset)
	}

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, to AppointmentStatus, notes *string) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    notes = COALESCE($4, notes),
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+appointmentCols,
		id, expectedVersion, to, notes)

	return r.afterSwap(ctx, id, row)
}

func (r *PgRepository) UpdateAppointmentDetails(ctx context.Context, id uuid.UUID, expectedVersion int64, patch AppointmentPatch) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET reason = COALESCE($3, reason),
		    notes = COALESCE($4, notes),
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+appointmentCols,
		id, expectedVersion, patch.Reason, patch.Notes)

	return r.afterSwap(ctx, id, row)
}

// afterSwap tells a missing row apart from a lost compare-and-swap.
func (r *PgRepository) afterSwap(ctx context.Context, id uuid.UUID, row pgx.Row) (*Appointment, error) {
	updated, err := scanAppointment(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	if _, getErr := r.GetAppointmentByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStaleAppointment
}

// WithinDayScope opens a transaction and takes a transaction-scoped advisory
// lock on (doctor, date). Every booking for that key queues on the lock, so
// the availability read and the insert that follows cannot interleave with
// another booking, whatever happens to the Redis lock in front of it.
func (r *PgRepository) WithinDayScope(ctx context.Context, doctorID string, date time.Time, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context) error {
		key := dayScopeKey(doctorID, DateOf(date))
		if _, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("lock day scope %s: %w", key, err)
		}
		return fn(ctx)
	})
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var doctorID *string
	if ev.DoctorID != "" {
		doctorID = &ev.DoctorID
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, doctor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, doctorID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
