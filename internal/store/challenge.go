package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/phishrange/apiserver/types"
)

// ChallengeRepository handles persistence for challenge definitions. The
// participant surface only ever reads; writes happen through seeding and the
// admin surface.
type ChallengeRepository struct {
	db *sql.DB
}

func NewChallengeRepository(db *sql.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

const challengeColumns = `
	id, challenge_number, flag, complete_message,
	email_from, email_subject, email_html, body_object_key,
	reply_to, headers, created_at, updated_at`

func (r *ChallengeRepository) GetByNumber(ctx context.Context, number int) (types.Challenge, error) {
	const query = `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE challenge_number = $1`
	row := r.db.QueryRowContext(ctx, query, number)
	challenge, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Challenge{}, ErrNotFound
		}
		return types.Challenge{}, err
	}
	return challenge, nil
}

func (r *ChallengeRepository) List(ctx context.Context) ([]types.Challenge, error) {
	const query = `
		SELECT ` + challengeColumns + `
		FROM challenges
		ORDER BY challenge_number`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	challenges := []types.Challenge{}
	for rows.Next() {
		challenge, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, challenge)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return challenges, nil
}

func (r *ChallengeRepository) Create(ctx context.Context, challenge types.Challenge) (types.Challenge, error) {
	now := time.Now()
	challenge.CreatedAt = now
	challenge.UpdatedAt = now

	replyToJSON, err := json.Marshal(challenge.Template.ReplyTo)
	if err != nil {
		return types.Challenge{}, err
	}
	headersJSON, err := json.Marshal(challenge.Template.Headers)
	if err != nil {
		return types.Challenge{}, err
	}

	const query = `
		INSERT INTO challenges (
			challenge_number, flag, complete_message,
			email_from, email_subject, email_html, body_object_key,
			reply_to, headers, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		challenge.Number,
		challenge.Flag,
		challenge.CompleteMessage,
		challenge.Template.From,
		challenge.Template.Subject,
		challenge.Template.HTML,
		challenge.Template.BodyObjectKey,
		replyToJSON,
		headersJSON,
		challenge.CreatedAt,
		challenge.UpdatedAt,
	).Scan(&challenge.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return types.Challenge{}, ErrDuplicate
		}
		return types.Challenge{}, err
	}
	return challenge, nil
}

// SetBodyObjectKey points a challenge's template body at an object in the
// asset store. This is an administrative write; the participant-facing core
// never calls it.
func (r *ChallengeRepository) SetBodyObjectKey(ctx context.Context, number int, key string) error {
	const query = `
		UPDATE challenges
		SET body_object_key = $1, updated_at = now()
		WHERE challenge_number = $2`
	result, err := r.db.ExecContext(ctx, query, key, number)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row rowScanner) (types.Challenge, error) {
	var challenge types.Challenge
	var replyToJSON, headersJSON []byte
	if err := row.Scan(
		&challenge.ID,
		&challenge.Number,
		&challenge.Flag,
		&challenge.CompleteMessage,
		&challenge.Template.From,
		&challenge.Template.Subject,
		&challenge.Template.HTML,
		&challenge.Template.BodyObjectKey,
		&replyToJSON,
		&headersJSON,
		&challenge.CreatedAt,
		&challenge.UpdatedAt,
	); err != nil {
		return types.Challenge{}, err
	}
	_ = json.Unmarshal(replyToJSON, &challenge.Template.ReplyTo)
	_ = json.Unmarshal(headersJSON, &challenge.Template.Headers)
	return challenge, nil
}
