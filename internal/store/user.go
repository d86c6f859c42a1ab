package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/phishrange/apiserver/types"
)

const uniqueViolation = "23505"

// UserRepository handles persistence for participants and their per-challenge
// progress.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByEmail loads a participant and their full progress map. The email lookup
// is exact-match against the unique index.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, email, username, created_at, updated_at
		FROM users
		WHERE email = $1`
	var user types.User
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	progress, err := r.loadProgress(ctx, user.ID)
	if err != nil {
		return types.User{}, err
	}
	user.Progress = progress
	return user, nil
}

func (r *UserRepository) loadProgress(ctx context.Context, userID int) (map[int]types.ChallengeProgress, error) {
	const query = `
		SELECT challenge_number, email_sent, completed
		FROM user_challenge_state
		WHERE user_id = $1`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	progress := make(map[int]types.ChallengeProgress)
	for rows.Next() {
		var number int
		var state types.ChallengeProgress
		if err := rows.Scan(&number, &state.EmailSent, &state.Completed); err != nil {
			return nil, err
		}
		progress[number] = state
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return progress, nil
}

// Create inserts a new participant. A concurrent insert for the same email
// surfaces as ErrDuplicate via the unique index, letting the caller re-read
// and resolve the race.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (email, username, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.Username,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	if user.Progress == nil {
		user.Progress = make(map[int]types.ChallengeProgress)
	}
	return user, nil
}

// MarkEmailSent flips the email_sent flag for (userID, challengeNumber) to
// true. The single-statement upsert is the atomic monotonic OR: concurrent
// calls cannot interleave a read-modify-write window, and the flag never goes
// back to false.
func (r *UserRepository) MarkEmailSent(ctx context.Context, userID, challengeNumber int) error {
	const query = `
		INSERT INTO user_challenge_state (user_id, challenge_number, email_sent, updated_at)
		VALUES ($1, $2, TRUE, now())
		ON CONFLICT (user_id, challenge_number)
		DO UPDATE SET email_sent = TRUE, updated_at = now()`
	_, err := r.db.ExecContext(ctx, query, userID, challengeNumber)
	return err
}

// MarkCompleted flips the completed flag for (userID, challengeNumber) to
// true, with the same upsert-as-monotonic-OR shape as MarkEmailSent.
func (r *UserRepository) MarkCompleted(ctx context.Context, userID, challengeNumber int) error {
	const query = `
		INSERT INTO user_challenge_state (user_id, challenge_number, completed, updated_at)
		VALUES ($1, $2, TRUE, now())
		ON CONFLICT (user_id, challenge_number)
		DO UPDATE SET completed = TRUE, updated_at = now()`
	_, err := r.db.ExecContext(ctx, query, userID, challengeNumber)
	return err
}
