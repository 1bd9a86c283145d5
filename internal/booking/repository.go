package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbConn is the subset of pgxpool.Pool the repository uses; pgxmock satisfies
// it in tests.
type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository is the postgres-backed booking store. Conflict-sensitive writes
// run inside one transaction that takes FOR UPDATE locks over every scheduled
// row in the (doctor, date) scope before deciding to write.
type Repository struct {
	db dbConn
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithConn allows injecting mocks for tests.
func NewRepositoryWithConn(db dbConn) *Repository {
	if db == nil {
		panic("booking: db conn required")
	}
	return &Repository{db: db}
}

const detailQuery = `
	SELECT a.id, a.client_id, a.doctor_id, a.service_id,
	       a.appointment_date, a.appointment_time, a.status,
	       a.notes, a.patient_name, a.cancellation_reason,
	       a.follow_up_date, a.follow_up_notes, a.actual_price, a.payment_status,
	       a.reminder_24h_sent, a.reminder_2h_sent, a.reminder_1h_sent,
	       c.name AS client_name, c.phone AS client_phone,
	       d.name AS doctor_name, d.specialization,
	       s.name AS service_name, s.price, s.duration_minutes
	FROM appointments a
	JOIN clients c ON a.client_id = c.id
	JOIN doctors d ON a.doctor_id = d.id
	JOIN services s ON a.service_id = s.id`

const lockScopeQuery = `
	SELECT id FROM appointments
	WHERE doctor_id = $1 AND appointment_date = $2 AND status = 'scheduled'
	FOR UPDATE`

// overlapQuery finds any scheduled appointment for the doctor/date whose
// interval intersects [$3, $3 + $4 minutes), using each busy row's own
// service duration.
const overlapQuery = `
	SELECT a.id FROM appointments a
	JOIN services s ON a.service_id = s.id
	WHERE a.doctor_id = $1 AND a.appointment_date = $2 AND a.status = 'scheduled'
	      AND a.appointment_time < ($3::time + make_interval(mins => $4))
	      AND $3::time < (a.appointment_time + make_interval(mins => s.duration_minutes))
	LIMIT 1`

// ---- clients ----

// ClientByPhone loads a client record by its phone identifier.
func (r *Repository) ClientByPhone(ctx context.Context, phone string) (*Client, error) {
	var (
		c       Client
		name    pgtype.Text
		blocked bool
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, phone, name, is_blocked FROM clients WHERE phone = $1`, phone).
		Scan(&c.ID, &c.Phone, &name, &blocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("booking: load client: %w", err)
	}
	c.Name = name.String
	c.Blocked = blocked
	return &c, nil
}

// UpsertClient creates the client if missing; an existing name is kept when
// the new one is empty.
func (r *Repository) UpsertClient(ctx context.Context, phone, name string) (*Client, error) {
	var (
		c      Client
		dbName pgtype.Text
	)
	err := r.db.QueryRow(ctx, `
		INSERT INTO clients (phone, name) VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (phone) DO UPDATE SET name = COALESCE(NULLIF(EXCLUDED.name, ''), clients.name)
		RETURNING id, phone, name, is_blocked`,
		phone, name).
		Scan(&c.ID, &c.Phone, &dbName, &c.Blocked)
	if err != nil {
		return nil, fmt.Errorf("booking: upsert client: %w", err)
	}
	c.Name = dbName.String
	return &c, nil
}

// SetClientBlocked flips the blocked flag; blocked clients are dropped at the
// inbound gate before any booking operation runs.
func (r *Repository) SetClientBlocked(ctx context.Context, phone string, blocked bool, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE clients SET is_blocked = $2, block_reason = NULLIF($3, ''), updated_at = NOW() WHERE phone = $1`,
		phone, blocked, reason)
	if err != nil {
		return fmt.Errorf("booking: set blocked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

// IsClientBlocked reports whether the phone belongs to a blocked client.
// Unknown phones are not blocked.
func (r *Repository) IsClientBlocked(ctx context.Context, phone string) (bool, error) {
	var blocked bool
	err := r.db.QueryRow(ctx, `SELECT is_blocked FROM clients WHERE phone = $1`, phone).Scan(&blocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("booking: check blocked: %w", err)
	}
	return blocked, nil
}

// ---- doctors & services ----

// Doctors returns all active doctors ordered by id.
func (r *Repository) Doctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, specialization, is_active FROM doctors WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("booking: list doctors: %w", err)
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		var d Doctor
		var spec pgtype.Text
		if err := rows.Scan(&d.ID, &d.Name, &spec, &d.Active); err != nil {
			return nil, fmt.Errorf("booking: scan doctor: %w", err)
		}
		d.Specialization = spec.String
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

// DoctorByID loads an active doctor.
func (r *Repository) DoctorByID(ctx context.Context, id int64) (*Doctor, error) {
	var d Doctor
	var spec pgtype.Text
	err := r.db.QueryRow(ctx,
		`SELECT id, name, specialization, is_active FROM doctors WHERE id = $1 AND is_active = TRUE`, id).
		Scan(&d.ID, &d.Name, &spec, &d.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("booking: load doctor: %w", err)
	}
	d.Specialization = spec.String
	return &d, nil
}

// Services returns all active services ordered by id.
func (r *Repository) Services(ctx context.Context) ([]Procedure, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, price, duration_minutes FROM services WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("booking: list services: %w", err)
	}
	defer rows.Close()

	var services []Procedure
	for rows.Next() {
		var s Procedure
		if err := rows.Scan(&s.ID, &s.Name, &s.Price, &s.DurationMinutes); err != nil {
			return nil, fmt.Errorf("booking: scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// ServiceByID loads an active service.
func (r *Repository) ServiceByID(ctx context.Context, id int64) (*Procedure, error) {
	var s Procedure
	err := r.db.QueryRow(ctx,
		`SELECT id, name, price, duration_minutes FROM services WHERE id = $1 AND is_active = TRUE`, id).
		Scan(&s.ID, &s.Name, &s.Price, &s.DurationMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("booking: load service: %w", err)
	}
	return &s, nil
}

// ---- schedules & absences ----

// DoctorSchedule returns the doctor's active override for the weekday, or nil
// when none exists.
func (r *Repository) DoctorSchedule(ctx context.Context, doctorID int64, weekday time.Weekday) (*DoctorSchedule, error) {
	var start, end pgtype.Time
	err := r.db.QueryRow(ctx, `
		SELECT start_time, end_time FROM doctor_schedules
		WHERE doctor_id = $1 AND day_of_week = $2 AND is_active = TRUE`,
		doctorID, weekdayIndex(weekday)).
		Scan(&start, &end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("booking: load doctor schedule: %w", err)
	}
	return &DoctorSchedule{
		DoctorID: doctorID,
		Weekday:  weekday,
		Start:    fromPGTime(start),
		End:      fromPGTime(end),
	}, nil
}

// IsDoctorAbsent reports whether an absence period covers the date.
func (r *Repository) IsDoctorAbsent(ctx context.Context, doctorID int64, date time.Time) (bool, error) {
	var one int
	err := r.db.QueryRow(ctx, `
		SELECT 1 FROM doctor_absences
		WHERE doctor_id = $1 AND start_date <= $2 AND end_date >= $2
		LIMIT 1`,
		doctorID, toPGDate(date)).
		Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("booking: check absence: %w", err)
	}
	return true, nil
}

// BusyIntervals returns the scheduled intervals for one doctor on one date,
// each carrying its own service duration, ordered chronologically.
func (r *Repository) BusyIntervals(ctx context.Context, doctorID int64, date time.Time) ([]BusyInterval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.appointment_time, s.duration_minutes
		FROM appointments a
		JOIN services s ON a.service_id = s.id
		WHERE a.doctor_id = $1 AND a.appointment_date = $2 AND a.status = 'scheduled'
		ORDER BY a.appointment_time`,
		doctorID, toPGDate(date))
	if err != nil {
		return nil, fmt.Errorf("booking: list busy intervals: %w", err)
	}
	defer rows.Close()

	var busy []BusyInterval
	for rows.Next() {
		var at pgtype.Time
		var b BusyInterval
		if err := rows.Scan(&at, &b.DurationMinutes); err != nil {
			return nil, fmt.Errorf("booking: scan busy interval: %w", err)
		}
		b.Start = fromPGTime(at)
		busy = append(busy, b)
	}
	return busy, rows.Err()
}

// ---- conflict-checked mutations ----

// CreateAppointment inserts a scheduled appointment after re-checking for
// overlap under an exclusive lock over the doctor's scheduled rows for the
// date. Returns *ConflictError when the interval is taken.
func (r *Repository) CreateAppointment(ctx context.Context, p CreateParams) (*AppointmentDetail, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var clientID int64
	if err := tx.QueryRow(ctx, `SELECT id FROM clients WHERE phone = $1`, p.ClientPhone).Scan(&clientID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("booking: resolve client: %w", err)
	}

	var duration int
	if err := tx.QueryRow(ctx, `SELECT duration_minutes FROM services WHERE id = $1`, p.ServiceID).Scan(&duration); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("booking: resolve service: %w", err)
	}

	// Lock every scheduled row for this doctor/date so the overlap check
	// and the insert happen under one exclusive scope.
	if _, err := tx.Exec(ctx, lockScopeQuery, p.DoctorID, toPGDate(p.Date)); err != nil {
		return nil, fmt.Errorf("booking: lock scope: %w", err)
	}

	var clash int64
	err = tx.QueryRow(ctx, overlapQuery, p.DoctorID, toPGDate(p.Date), toPGTime(p.Start), duration).Scan(&clash)
	if err == nil {
		return nil, &ConflictError{DoctorID: p.DoctorID, Date: p.Date, Time: p.Start}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("booking: overlap check: %w", err)
	}

	var apptID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (client_id, doctor_id, service_id, appointment_date, appointment_time, notes, patient_name)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING id`,
		clientID, p.DoctorID, p.ServiceID, toPGDate(p.Date), toPGTime(p.Start), p.Notes, p.PatientName).
		Scan(&apptID)
	if err != nil {
		return nil, fmt.Errorf("booking: insert appointment: %w", err)
	}

	detail, err := scanDetailRow(tx.QueryRow(ctx, detailQuery+` WHERE a.id = $1`, apptID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit create: %w", err)
	}
	return detail, nil
}

// CancelAppointment moves a scheduled appointment to cancelled. When
// clientPhone is non-empty the update only matches appointments owned by that
// client. Returns ErrNotFound when nothing matched (unknown id, wrong owner,
// or already inactive).
func (r *Repository) CancelAppointment(ctx context.Context, id int64, clientPhone, reason string) (*AppointmentDetail, error) {
	var (
		apptID int64
		err    error
	)
	if clientPhone != "" {
		err = r.db.QueryRow(ctx, `
			UPDATE appointments SET status = 'cancelled',
			       cancellation_reason = NULLIF($2, ''), updated_at = NOW()
			WHERE id = $1 AND status = 'scheduled'
			      AND client_id = (SELECT id FROM clients WHERE phone = $3)
			RETURNING id`,
			id, reason, clientPhone).Scan(&apptID)
	} else {
		err = r.db.QueryRow(ctx, `
			UPDATE appointments SET status = 'cancelled',
			       cancellation_reason = NULLIF($2, ''), updated_at = NOW()
			WHERE id = $1 AND status = 'scheduled'
			RETURNING id`,
			id, reason).Scan(&apptID)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: cancel appointment: %w", err)
	}
	return scanDetailRow(r.db.QueryRow(ctx, detailQuery+` WHERE a.id = $1`, apptID))
}

// RescheduleAppointment moves a scheduled appointment to a new date/time
// after re-validating against the (doctor, new date) lock scope, excluding
// the row's own id. All reminder flags are cleared. Returns ErrNotFound when
// the row is missing/not owned and *ConflictError when the new slot overlaps.
func (r *Repository) RescheduleAppointment(ctx context.Context, p RescheduleParams) (*RescheduleResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin reschedule: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		doctorID int64
		oldDate  pgtype.Date
		oldTime  pgtype.Time
		duration int
	)
	currentQuery := `
		SELECT a.doctor_id, a.appointment_date, a.appointment_time, s.duration_minutes
		FROM appointments a
		JOIN services s ON a.service_id = s.id
		WHERE a.id = $1 AND a.status = 'scheduled'`
	if p.ClientPhone != "" {
		err = tx.QueryRow(ctx, currentQuery+` AND a.client_id = (SELECT id FROM clients WHERE phone = $2)`,
			p.ID, p.ClientPhone).Scan(&doctorID, &oldDate, &oldTime, &duration)
	} else {
		err = tx.QueryRow(ctx, currentQuery, p.ID).Scan(&doctorID, &oldDate, &oldTime, &duration)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: load appointment: %w", err)
	}

	if _, err := tx.Exec(ctx, lockScopeQuery, doctorID, toPGDate(p.NewDate)); err != nil {
		return nil, fmt.Errorf("booking: lock scope: %w", err)
	}

	var clash int64
	err = tx.QueryRow(ctx, `
		SELECT a.id FROM appointments a
		JOIN services s ON a.service_id = s.id
		WHERE a.doctor_id = $1 AND a.appointment_date = $2 AND a.status = 'scheduled'
		      AND a.id != $5
		      AND a.appointment_time < ($3::time + make_interval(mins => $4))
		      AND $3::time < (a.appointment_time + make_interval(mins => s.duration_minutes))
		LIMIT 1`,
		doctorID, toPGDate(p.NewDate), toPGTime(p.NewStart), duration, p.ID).Scan(&clash)
	if err == nil {
		return nil, &ConflictError{DoctorID: doctorID, Date: p.NewDate, Time: p.NewStart}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("booking: overlap check: %w", err)
	}

	// Re-guard on status: a cancel may have committed between the initial
	// load and this update.
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET appointment_date = $2, appointment_time = $3,
		    reminder_24h_sent = FALSE, reminder_2h_sent = FALSE, reminder_1h_sent = FALSE,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`,
		p.ID, toPGDate(p.NewDate), toPGTime(p.NewStart))
	if err != nil {
		return nil, fmt.Errorf("booking: update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	detail, err := scanDetailRow(tx.QueryRow(ctx, detailQuery+` WHERE a.id = $1`, p.ID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit reschedule: %w", err)
	}
	return &RescheduleResult{
		Detail:   *detail,
		OldDate:  oldDate.Time,
		OldStart: fromPGTime(oldTime),
	}, nil
}

// SetDoctorAbsence records the absence and cancels every scheduled
// appointment for the doctor inside the inclusive range, as one atomic unit.
// The affected rows are locked before cancellation so a concurrent create
// cannot slip into the window.
func (r *Repository) SetDoctorAbsence(ctx context.Context, doctorID int64, start, end time.Time, reason string) (*AbsenceResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin absence: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var absenceID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO doctor_absences (doctor_id, start_date, end_date, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		doctorID, toPGDate(start), toPGDate(end), reason).Scan(&absenceID)
	if err != nil {
		return nil, fmt.Errorf("booking: insert absence: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		SELECT id FROM appointments
		WHERE doctor_id = $1 AND status = 'scheduled'
		      AND appointment_date BETWEEN $2 AND $3
		FOR UPDATE`,
		doctorID, toPGDate(start), toPGDate(end)); err != nil {
		return nil, fmt.Errorf("booking: lock absence scope: %w", err)
	}

	rows, err := tx.Query(ctx, detailQuery+`
		WHERE a.doctor_id = $1 AND a.status = 'scheduled'
		      AND a.appointment_date BETWEEN $2 AND $3
		ORDER BY a.appointment_date, a.appointment_time`,
		doctorID, toPGDate(start), toPGDate(end))
	if err != nil {
		return nil, fmt.Errorf("booking: list affected: %w", err)
	}
	affected, err := collectDetails(rows)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET status = 'cancelled',
		       cancellation_reason = $4, updated_at = NOW()
		WHERE doctor_id = $1 AND status = 'scheduled'
		      AND appointment_date BETWEEN $2 AND $3`,
		doctorID, toPGDate(start), toPGDate(end), "doctor unavailable: "+reason)
	if err != nil {
		return nil, fmt.Errorf("booking: cascade cancel: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit absence: %w", err)
	}
	return &AbsenceResult{
		AbsenceID: absenceID,
		Cancelled: int(tag.RowsAffected()),
		Affected:  affected,
	}, nil
}

// ---- reads ----

// AppointmentByID loads the joined appointment record.
func (r *Repository) AppointmentByID(ctx context.Context, id int64) (*AppointmentDetail, error) {
	detail, err := scanDetailRow(r.db.QueryRow(ctx, detailQuery+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return detail, nil
}

// UpcomingForClient lists the client's scheduled future appointments.
func (r *Repository) UpcomingForClient(ctx context.Context, phone string, now time.Time) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, detailQuery+`
		WHERE c.phone = $1 AND a.status = 'scheduled'
		      AND (a.appointment_date + a.appointment_time) > $2
		ORDER BY a.appointment_date, a.appointment_time`,
		phone, now)
	if err != nil {
		return nil, fmt.Errorf("booking: upcoming for client: %w", err)
	}
	return collectDetails(rows)
}

// UpcomingForDoctor lists the doctor's scheduled future appointments.
func (r *Repository) UpcomingForDoctor(ctx context.Context, doctorID int64, now time.Time) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, detailQuery+`
		WHERE a.doctor_id = $1 AND a.status = 'scheduled'
		      AND (a.appointment_date + a.appointment_time) > $2
		ORDER BY a.appointment_date, a.appointment_time`,
		doctorID, now)
	if err != nil {
		return nil, fmt.Errorf("booking: upcoming for doctor: %w", err)
	}
	return collectDetails(rows)
}

// UpcomingForClinic lists all scheduled future appointments (administrative
// view, capped at 50).
func (r *Repository) UpcomingForClinic(ctx context.Context, now time.Time) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, detailQuery+`
		WHERE a.status = 'scheduled'
		      AND (a.appointment_date + a.appointment_time) > $1
		ORDER BY a.appointment_date, a.appointment_time
		LIMIT 50`,
		now)
	if err != nil {
		return nil, fmt.Errorf("booking: upcoming for clinic: %w", err)
	}
	return collectDetails(rows)
}

// ---- guarded transitions & maintenance ----

// CompleteAppointment marks a scheduled appointment completed. Transitions
// out of any other state fail with ErrNotFound.
func (r *Repository) CompleteAppointment(ctx context.Context, id int64) error {
	return r.transition(ctx, id, StatusCompleted)
}

// MarkNoShow marks a scheduled appointment as a no-show.
func (r *Repository) MarkNoShow(ctx context.Context, id int64) error {
	return r.transition(ctx, id, StatusNoShow)
}

func (r *Repository) transition(ctx context.Context, id int64, next Status) error {
	if !StatusScheduled.CanTransitionTo(next) {
		return fmt.Errorf("booking: illegal transition to %s", next)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1 AND status = 'scheduled'`,
		id, string(next))
	if err != nil {
		return fmt.Errorf("booking: transition to %s: %w", next, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPayment stores the final amount actually paid for an appointment.
func (r *Repository) RecordPayment(ctx context.Context, id int64, amount int, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE appointments SET actual_price = $2, payment_status = $3, updated_at = NOW() WHERE id = $1`,
		id, amount, status)
	if err != nil {
		return fmt.Errorf("booking: record payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ScheduleFollowUp attaches a follow-up date to a completed or scheduled
// appointment.
func (r *Repository) ScheduleFollowUp(ctx context.Context, id int64, date time.Time, notes string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET follow_up_date = $2, follow_up_notes = NULLIF($3, '')
		WHERE id = $1 AND status IN ('completed', 'scheduled')`,
		id, toPGDate(date), notes)
	if err != nil {
		return fmt.Errorf("booking: schedule follow-up: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DueReminders returns scheduled appointments whose start falls within
// [lower, upper] and whose flag for the given lead time is still unset.
func (r *Repository) DueReminders(ctx context.Context, hoursBefore int, lower, upper time.Time) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, detailQuery+`
		WHERE a.status = 'scheduled'
		      AND a.`+reminderColumn(hoursBefore)+` = FALSE
		      AND (a.appointment_date + a.appointment_time) BETWEEN $1 AND $2`,
		lower, upper)
	if err != nil {
		return nil, fmt.Errorf("booking: due reminders: %w", err)
	}
	return collectDetails(rows)
}

// MarkReminderSent flips the reminder flag for the given lead time.
func (r *Repository) MarkReminderSent(ctx context.Context, id int64, hoursBefore int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE appointments SET `+reminderColumn(hoursBefore)+` = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("booking: mark reminder sent: %w", err)
	}
	return nil
}

// ElapsedScheduled returns scheduled appointments whose start is before the
// cutoff (candidates for the completion sweep).
func (r *Repository) ElapsedScheduled(ctx context.Context, cutoff time.Time) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, detailQuery+`
		WHERE a.status = 'scheduled'
		      AND (a.appointment_date + a.appointment_time) < $1`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("booking: elapsed scheduled: %w", err)
	}
	return collectDetails(rows)
}

// reminderColumn maps a lead time to its flag column. Only fixed names are
// returned, never caller input.
func reminderColumn(hoursBefore int) string {
	switch {
	case hoursBefore >= 24:
		return "reminder_24h_sent"
	case hoursBefore >= 2:
		return "reminder_2h_sent"
	default:
		return "reminder_1h_sent"
	}
}

// ---- scan helpers ----

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()
	var details []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, *d)
	}
	return details, rows.Err()
}

func scanDetailRow(row pgx.Row) (*AppointmentDetail, error) {
	return scanDetail(row)
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var (
		d            AppointmentDetail
		date         pgtype.Date
		start        pgtype.Time
		status       string
		notes        pgtype.Text
		patientName  pgtype.Text
		cancelReason pgtype.Text
		followUpDate pgtype.Date
		followUpNote pgtype.Text
		actualPrice  pgtype.Int4
		payStatus    pgtype.Text
		clientName   pgtype.Text
		spec         pgtype.Text
	)
	err := row.Scan(
		&d.ID, &d.ClientID, &d.DoctorID, &d.ServiceID,
		&date, &start, &status,
		&notes, &patientName, &cancelReason,
		&followUpDate, &followUpNote, &actualPrice, &payStatus,
		&d.Reminder24hSent, &d.Reminder2hSent, &d.Reminder1hSent,
		&clientName, &d.ClientPhone,
		&d.DoctorName, &spec,
		&d.ServiceName, &d.Price, &d.DurationMinutes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("booking: scan appointment: %w", err)
	}
	d.Date = date.Time
	d.Start = fromPGTime(start)
	d.Status = Status(status)
	d.Notes = notes.String
	d.PatientName = patientName.String
	d.CancellationReason = cancelReason.String
	if followUpDate.Valid {
		t := followUpDate.Time
		d.FollowUpDate = &t
	}
	d.FollowUpNotes = followUpNote.String
	if actualPrice.Valid {
		v := int(actualPrice.Int32)
		d.ActualPrice = &v
	}
	d.PaymentStatus = payStatus.String
	d.ClientName = clientName.String
	d.Specialization = spec.String
	return &d, nil
}

const microsPerMinute = 60_000_000

func toPGTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * microsPerMinute, Valid: true}
}

func fromPGTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / microsPerMinute)
}

func toPGDate(d time.Time) pgtype.Date {
	return pgtype.Date{Time: d, Valid: true}
}

func weekdayIndex(wd time.Weekday) int {
	// Stored with Monday = 0, matching the schedule table layout.
	return (int(wd) + 6) % 7
}
