package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"appointly/internal/domain"
	"appointly/internal/store"
)

var appointmentColumns = []string{
	"id", "name", "email", "slot_date", "slot_time", "start_time", "end_time",
	"description", "status", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*AppointmentRepo, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	db := NewDB(sqlDB)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewAppointmentRepo(db), mock
}

func TestFindByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.MustParse("00000000-0000-0000-0000-000000000101")

	mock.ExpectQuery(`FROM "appointments"`).
		WillReturnRows(sqlmock.NewRows(appointmentColumns))

	_, err := repo.FindByID(context.Background(), id)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByID_ScansRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.MustParse("00000000-0000-0000-0000-000000000102")
	start := time.Date(2027, 1, 10, 4, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM "appointments"`).
		WillReturnRows(sqlmock.NewRows(appointmentColumns).AddRow(
			id.String(), "Ada", "ada@example.com", "2027-01-10", "10:00:00",
			start, start.Add(30*time.Minute), "intro", "confirmed", start, start,
		))

	got, err := repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if got.ID != id || got.Name != "Ada" || got.Time != "10:00:00" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Status != domain.StatusConfirmed {
		t.Fatalf("status = %q, want %q", got.Status, domain.StatusConfirmed)
	}
	if !got.EndTime.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("end = %v, want %v", got.EndTime, start.Add(30*time.Minute))
	}
}

func TestUpdateStatus_NoRowsIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "appointments"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), uuid.New(), domain.StatusCancelled)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
	}
}

func TestUpdateStatus_Success(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "appointments" .*status = 'cancelled'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), uuid.New(), domain.StatusCancelled); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListConfirmed_OrdersBySlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2027, 1, 10, 4, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE \(status = 'confirmed'\) ORDER BY slot_date ASC, slot_time ASC`).
		WillReturnRows(sqlmock.NewRows(appointmentColumns).
			AddRow(uuid.New().String(), "A", "a@example.com", "2027-01-10", "10:00:00",
				start, start.Add(30*time.Minute), "", "confirmed", start, start).
			AddRow(uuid.New().String(), "B", "b@example.com", "2027-01-11", "09:00:00",
				start.Add(24*time.Hour), start.Add(24*time.Hour+30*time.Minute), "", "confirmed", start, start))

	rows, err := repo.ListConfirmed(context.Background())
	if err != nil {
		t.Fatalf("ListConfirmed error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].Name != "A" || rows[1].Name != "B" {
		t.Fatalf("unexpected order: %q, %q", rows[0].Name, rows[1].Name)
	}
}

func TestUpdateSlot_TakenSlotRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.MustParse("00000000-0000-0000-0000-000000000103")
	other := uuid.MustParse("00000000-0000-0000-0000-000000000104")
	start := time.Date(2027, 1, 11, 5, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock\(hashtext\('2027-01-11 11:00:00'\)\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM "appointments"`).
		WillReturnRows(sqlmock.NewRows(appointmentColumns).AddRow(
			other.String(), "B", "b@example.com", "2027-01-11", "11:00:00",
			start, start.Add(30*time.Minute), "", "confirmed", start, start,
		))
	mock.ExpectRollback()

	err := repo.UpdateSlot(context.Background(), id, "2027-01-11", "11:00:00", start, start.Add(30*time.Minute))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want %v", err, store.ErrConflict)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateSlot_MovesConfirmedRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.MustParse("00000000-0000-0000-0000-000000000105")
	start := time.Date(2027, 1, 11, 5, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM "appointments"`).
		WillReturnRows(sqlmock.NewRows(appointmentColumns))
	mock.ExpectExec(`UPDATE "appointments" .*slot_time = '11:00:00'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateSlot(context.Background(), id, "2027-01-11", "11:00:00", start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("UpdateSlot error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_ReplayOfDifferentPayloadIsIdempotencyConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.MustParse("00000000-0000-0000-0000-000000000106")
	start := time.Date(2027, 1, 10, 4, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM "appointments"`).
		WillReturnRows(sqlmock.NewRows(appointmentColumns).AddRow(
			id.String(), "Ada", "ada@example.com", "2027-01-10", "10:00:00",
			start, start.Add(30*time.Minute), "intro", "confirmed", start, start,
		))

	_, err := repo.Insert(context.Background(), domain.Appointment{
		ID:          id,
		Name:        "Ada",
		Email:       "ada@example.com",
		Date:        "2027-01-10",
		Time:        "10:00:00",
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Description: "something else",
	})
	if !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want %v", err, store.ErrIdempotencyConflict)
	}
}

func TestInsert_ReplayOfCancelledRowIsIdempotencyConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.MustParse("00000000-0000-0000-0000-000000000107")
	start := time.Date(2027, 1, 10, 4, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM "appointments"`).
		WillReturnRows(sqlmock.NewRows(appointmentColumns).AddRow(
			id.String(), "Ada", "ada@example.com", "2027-01-10", "10:00:00",
			start, start.Add(30*time.Minute), "intro", "cancelled", start, start,
		))

	_, err := repo.Insert(context.Background(), domain.Appointment{
		ID:          id,
		Name:        "Ada",
		Email:       "ada@example.com",
		Date:        "2027-01-10",
		Time:        "10:00:00",
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Description: "intro",
	})
	if !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want %v", err, store.ErrIdempotencyConflict)
	}
}

func TestMapWriteError(t *testing.T) {
	plain := errors.New("boom")

	cases := []struct {
		name string
		in   error
		want error
	}{
		{
			name: "slot index violation",
			in:   fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: confirmedSlotConstraint}),
			want: store.ErrConflict,
		},
		{
			name: "primary key violation",
			in:   &pgconn.PgError{Code: "23505", ConstraintName: primaryKeyConstraint},
			want: errDuplicateID,
		},
		{
			name: "other error passes through",
			in:   plain,
			want: plain,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapWriteError(tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("mapWriteError = %v, want %v", got, tc.want)
			}
		})
	}

	other := &pgconn.PgError{Code: "23503", ConstraintName: "fk"}
	if got := mapWriteError(other); got != error(other) {
		t.Fatalf("mapWriteError changed unrelated pg error: %v", got)
	}
}
