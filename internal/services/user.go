package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/phishrange/apiserver/internal/store"
	"github.com/phishrange/apiserver/types"
)

// UserRepository defines persistence operations for participants.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	MarkEmailSent(ctx context.Context, userID, challengeNumber int) error
	MarkCompleted(ctx context.Context, userID, challengeNumber int) error
}

// ChallengeRepository defines the read operations the participant surface
// needs on challenge definitions.
type ChallengeRepository interface {
	GetByNumber(ctx context.Context, number int) (types.Challenge, error)
}

// UserService owns the identity-binding invariant and participant progress.
//
// Emails and usernames compare case-sensitively and are never normalized
// here; a lookup with the wrong username never returns data.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Register binds email to username on first call and is an idempotent no-op
// on repeat calls with the same pair. A repeat call with a different username
// fails with ErrIdentityConflict and mutates nothing.
func (s *UserService) Register(ctx context.Context, email, username string) (types.User, error) {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		if existing.Username != username {
			return types.User{}, ErrIdentityConflict
		}
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("register: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{Email: email, Username: username})
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a registration race for this email. The winner's row decides
		// whether this call was idempotent or a conflict.
		winner, getErr := s.repo.GetByEmail(ctx, email)
		if getErr != nil {
			return types.User{}, fmt.Errorf("register: %w", getErr)
		}
		if winner.Username != username {
			return types.User{}, ErrIdentityConflict
		}
		return winner, nil
	}
	if err != nil {
		return types.User{}, fmt.Errorf("register: %w", err)
	}
	return user, nil
}

// Lookup returns the participant for the given identity pair. It is the
// authorization gate for every other operation: store.ErrNotFound when the
// email is unknown, ErrIdentityMismatch when the username disagrees.
func (s *UserService) Lookup(ctx context.Context, email, username string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return types.User{}, err
	}
	if user.Username != username {
		return types.User{}, ErrIdentityMismatch
	}
	return user, nil
}
