package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"appointly/internal/domain"
	"appointly/internal/store"
)

const (
	uniqueViolation = "23505"

	confirmedSlotConstraint = "appointments_confirmed_slot_key"
	primaryKeyConstraint    = "appointments_pkey"
)

var errDuplicateID = errors.New("duplicate appointment id")

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

var _ store.AppointmentRepository = (*AppointmentRepo)(nil)

type slotTx struct {
	tx bun.Tx
}

// Insert stores a new confirmed appointment. Re-inserting an id that already
// exists returns the stored row when the payload matches and the row is still
// confirmed, and store.ErrIdempotencyConflict otherwise.
func (r *AppointmentRepo) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID != uuid.Nil {
		existing, err := r.FindByID(ctx, appt.ID)
		switch {
		case err == nil:
			return replayed(existing, appt)
		case !errors.Is(err, store.ErrNotFound):
			return domain.Appointment{}, err
		}
	}

	var out domain.Appointment
	err := r.InSlotTransaction(ctx, appt.Date, appt.Time, func(ctx context.Context, tx store.SlotTx) error {
		a, err := tx.InsertAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if errors.Is(err, errDuplicateID) {
		existing, findErr := r.FindByID(ctx, appt.ID)
		if findErr != nil {
			return domain.Appointment{}, findErr
		}
		return replayed(existing, appt)
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func replayed(existing, appt domain.Appointment) (domain.Appointment, error) {
	if !existing.Active() ||
		existing.Name != appt.Name ||
		existing.Email != appt.Email ||
		existing.Description != appt.Description ||
		!existing.StartTime.Equal(appt.StartTime) ||
		!existing.EndTime.Equal(appt.EndTime) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func (r *AppointmentRepo) FindOne(ctx context.Context, filter store.Filter) (domain.Appointment, error) {
	return findOne(ctx, r.db, filter)
}

func (r *AppointmentRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var row domain.Appointment
	err := r.db.NewSelect().
		Model(&row).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return row, nil
}

func (r *AppointmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapWriteError(err)
	}
	return expectAffected(res)
}

func (r *AppointmentRepo) UpdateSlot(ctx context.Context, id uuid.UUID, date, clock string, start, end time.Time) error {
	return r.InSlotTransaction(ctx, date, clock, func(ctx context.Context, tx store.SlotTx) error {
		return tx.MoveAppointment(ctx, id, date, clock, start, end)
	})
}

func (r *AppointmentRepo) ListConfirmed(ctx context.Context) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("status = ?", domain.StatusConfirmed).
		OrderExpr("slot_date ASC, slot_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// InSlotTransaction runs fn in a transaction that holds the advisory lock for
// the given slot until commit or rollback.
func (r *AppointmentRepo) InSlotTransaction(ctx context.Context, date, clock string, fn func(ctx context.Context, tx store.SlotTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockSlot(ctx, tx, date, clock); err != nil {
			return err
		}
		return fn(ctx, slotTx{tx: tx})
	})
}

func lockSlot(ctx context.Context, tx bun.Tx, date, clock string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", date+" "+clock).Exec(ctx)
	return err
}

func (s slotTx) FindOne(ctx context.Context, filter store.Filter) (domain.Appointment, error) {
	return findOne(ctx, s.tx, filter)
}

func (s slotTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	_, err := s.FindOne(ctx, store.Filter{
		Date:      appt.Date,
		Time:      appt.Time,
		Status:    domain.StatusConfirmed,
		ExcludeID: appt.ID,
	})
	if err == nil {
		return domain.Appointment{}, store.ErrConflict
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, err
	}

	m := appt
	if _, err := s.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return m, nil
}

func (s slotTx) MoveAppointment(ctx context.Context, id uuid.UUID, date, clock string, start, end time.Time) error {
	_, err := s.FindOne(ctx, store.Filter{
		Date:      date,
		Time:      clock,
		Status:    domain.StatusConfirmed,
		ExcludeID: id,
	})
	if err == nil {
		return store.ErrConflict
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	res, err := s.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("slot_date = ?", date).
		Set("slot_time = ?", clock).
		Set("start_time = ?", start.UTC()).
		Set("end_time = ?", end.UTC()).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", domain.StatusConfirmed).
		Exec(ctx)
	if err != nil {
		return mapWriteError(err)
	}
	return expectAffected(res)
}

func findOne(ctx context.Context, db bun.IDB, filter store.Filter) (domain.Appointment, error) {
	var row domain.Appointment
	q := db.NewSelect().Model(&row)
	if filter.Date != "" {
		q = q.Where("slot_date = ?", filter.Date)
	}
	if filter.Time != "" {
		q = q.Where("slot_time = ?", filter.Time)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ExcludeID != uuid.Nil {
		q = q.Where("id <> ?", filter.ExcludeID)
	}
	err := q.OrderExpr("created_at ASC").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return row, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case confirmedSlotConstraint:
		return store.ErrConflict
	case primaryKeyConstraint:
		return errDuplicateID
	}
	return err
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
