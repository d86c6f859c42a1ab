package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/phishrange/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestUserGetByEmailLoadsProgress(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, email, username, created_at, updated_at\s+FROM users\s+WHERE email = \$1`).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "username", "created_at", "updated_at"}).
			AddRow(3, "a@x.com", "alice", now, now))
	mock.ExpectQuery(`SELECT challenge_number, email_sent, completed\s+FROM user_challenge_state\s+WHERE user_id = \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"challenge_number", "email_sent", "completed"}).
			AddRow(1, true, true).
			AddRow(2, true, false))

	user, err := repo.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 3, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, user.ProgressFor(1).Completed)
	assert.True(t, user.ProgressFor(2).EmailSent)
	assert.False(t, user.ProgressFor(2).Completed)
	assert.False(t, user.ProgressFor(3).EmailSent)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByEmailNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`SELECT id, email, username`).
		WithArgs("nobody@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserCreateMapsUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("a@x.com", "alice", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	_, err := repo.Create(context.Background(), userFixture())
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUserCreateReturnsID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("a@x.com", "alice", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	user, err := repo.Create(context.Background(), userFixture())
	require.NoError(t, err)
	assert.Equal(t, 11, user.ID)
	assert.NotNil(t, user.Progress)
}

func TestMarkEmailSentUpserts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`DO UPDATE SET email_sent = TRUE`).
		WithArgs(3, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.MarkEmailSent(context.Background(), 3, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompletedUpserts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`DO UPDATE SET completed = TRUE`).
		WithArgs(3, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.MarkCompleted(context.Background(), 3, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func userFixture() types.User {
	return types.User{Email: "a@x.com", Username: "alice"}
}
