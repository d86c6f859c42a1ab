package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/phishrange/apiserver/internal/store"
	"github.com/phishrange/apiserver/types"
)

// FlagService verifies submitted flags and advances completion state.
type FlagService struct {
	users      *UserService
	repo       UserRepository
	challenges ChallengeRepository
}

func NewFlagService(users *UserService, repo UserRepository, challenges ChallengeRepository) *FlagService {
	return &FlagService{users: users, repo: repo, challenges: challenges}
}

// Submit checks candidate against the challenge's flag for the identified
// participant.
//
// The comparison is exact and case-sensitive; no trimming happens here. A
// wrong candidate mutates nothing and may be retried freely — including after
// the challenge is already completed, where it still comes back incorrect. A
// correct candidate marks the challenge completed via a monotonic upsert, so
// repeats and concurrent correct submissions all converge on completed=true.
//
// Submission is not gated on the email_sent flag: dispatch tracking is
// best-effort and must not lock a participant out of a solvable challenge.
func (s *FlagService) Submit(ctx context.Context, email, username string, challengeNumber int, candidate string) (types.SubmissionResult, error) {
	user, err := s.users.Lookup(ctx, email, username)
	if err != nil {
		return types.SubmissionResult{}, err
	}

	challenge, err := s.challenges.GetByNumber(ctx, challengeNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.SubmissionResult{}, ErrChallengeNotFound
		}
		return types.SubmissionResult{}, fmt.Errorf("submit: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(candidate), []byte(challenge.Flag)) != 1 {
		return types.SubmissionResult{Correct: false}, nil
	}

	if err := s.repo.MarkCompleted(ctx, user.ID, challengeNumber); err != nil {
		return types.SubmissionResult{}, fmt.Errorf("submit: %w", err)
	}

	return types.SubmissionResult{
		Correct: true,
		Message: challenge.CompleteMessage,
	}, nil
}
