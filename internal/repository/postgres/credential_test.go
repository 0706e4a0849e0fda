package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"porter/internal/repository"
)

func newMockRepository(t *testing.T, key string) (*CredentialRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCredentialRepository(db, key), mock
}

func TestCredentialRepository_EnsureSchema(t *testing.T) {
	repo, mock := newMockRepository(t, "")
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS client_credentials")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCredentialRepository_SaveUpsertsUnderKey(t *testing.T) {
	repo, mock := newMockRepository(t, "")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO client_credentials")).
		WithArgs(repository.TokenKey, "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), "tok-1"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCredentialRepository_Load(t *testing.T) {
	repo, mock := newMockRepository(t, "kiosk")
	query := regexp.QuoteMeta("SELECT token FROM client_credentials WHERE key = $1")

	mock.ExpectQuery(query).WithArgs("kiosk").
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("tok-1"))
	got, err := repo.Load(context.Background())
	if err != nil || got != "tok-1" {
		t.Fatalf("expected tok-1, got %q (%v)", got, err)
	}

	mock.ExpectQuery(query).WithArgs("kiosk").WillReturnError(sql.ErrNoRows)
	if _, err := repo.Load(context.Background()); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery(query).WithArgs("kiosk").WillReturnError(errors.New("connection reset"))
	if _, err := repo.Load(context.Background()); err == nil || errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected the driver error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCredentialRepository_Clear(t *testing.T) {
	repo, mock := newMockRepository(t, "")
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM client_credentials WHERE key = $1")).
		WithArgs(repository.TokenKey).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Clear(context.Background()); err != nil {
		t.Errorf("expected clearing an absent row to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
