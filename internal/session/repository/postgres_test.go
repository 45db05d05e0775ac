package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"watrack/backend/internal/session/domain"
)

func sessionRows(s *domain.Session) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"session_id", "user_id", "status", "auth_blob", "created_at", "updated_at"}).
		AddRow(s.SessionID, s.UserID, string(s.Status), s.AuthBlob, s.CreatedAt, s.UpdatedAt)
}

func TestUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectExec("INSERT INTO wa_sessions").
		WithArgs("wa-1", "user-1", "LINKED", []byte("blob")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := &domain.Session{SessionID: "wa-1", UserID: "user-1", Status: domain.StatusLinked, AuthBlob: []byte("blob")}
	if err := repo.Upsert(context.Background(), s); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpsert_NullableUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	// An unclaimed session persists a NULL user_id, not an empty string.
	mock.ExpectExec("INSERT INTO wa_sessions").
		WithArgs("wa-1", nil, "PENDING", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := &domain.Session{SessionID: "wa-1", Status: domain.StatusPending}
	if err := repo.Upsert(context.Background(), s); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now().UTC()
	want := &domain.Session{
		SessionID: "wa-1", UserID: "user-1", Status: domain.StatusLinked,
		AuthBlob: []byte("blob"), CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectQuery("SELECT (.+) FROM wa_sessions WHERE session_id").
		WithArgs("wa-1").
		WillReturnRows(sessionRows(want))

	got, err := repo.GetByID(context.Background(), "wa-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil {
		t.Fatal("GetByID returned nil for existing row")
	}
	if got.SessionID != want.SessionID || got.UserID != want.UserID || got.Status != want.Status {
		t.Errorf("GetByID = %+v, want %+v", got, want)
	}
	if string(got.AuthBlob) != "blob" {
		t.Errorf("AuthBlob = %q, want %q", got.AuthBlob, "blob")
	}
}

func TestGetByID_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM wa_sessions WHERE session_id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "status", "auth_blob", "created_at", "updated_at"}))

	got, err := repo.GetByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Errorf("GetByID = %+v, want nil for missing row", got)
	}
}

func TestGetByID_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM wa_sessions WHERE session_id").
		WithArgs("wa-1").
		WillReturnError(errors.New("connection refused"))

	if _, err := repo.GetByID(context.Background(), "wa-1"); err == nil {
		t.Fatal("GetByID should propagate database errors")
	}
}

func TestLatestByUserAndStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now().UTC()
	want := &domain.Session{SessionID: "wa-2", UserID: "user-1", Status: domain.StatusPending, CreatedAt: now, UpdatedAt: now}
	mock.ExpectQuery("SELECT (.+) FROM wa_sessions").
		WithArgs("user-1", "PENDING").
		WillReturnRows(sessionRows(want))

	got, err := repo.LatestByUserAndStatus(context.Background(), "user-1", domain.StatusPending)
	if err != nil {
		t.Fatalf("LatestByUserAndStatus: %v", err)
	}
	if got == nil || got.SessionID != "wa-2" {
		t.Errorf("LatestByUserAndStatus = %+v, want session wa-2", got)
	}
}

func TestUpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectExec("UPDATE wa_sessions SET status").
		WithArgs("wa-1", "DISCONNECTED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "wa-1", domain.StatusDisconnected); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectExec("DELETE FROM wa_sessions").
		WithArgs("wa-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Deleting a missing row is not an error.
	if err := repo.Delete(context.Background(), "wa-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
