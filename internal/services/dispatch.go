package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phishrange/apiserver/internal/mail"
	"github.com/phishrange/apiserver/internal/storage"
	"github.com/phishrange/apiserver/internal/store"
	"github.com/phishrange/apiserver/types"
)

// DispatchService sends challenge material to a participant's email address
// and records that dispatch was requested.
//
// The dispatcher is injected, never a package-level client, so tests run
// against fakes. The asset store is optional; templates with a body object
// key fail dispatch when it is absent.
type DispatchService struct {
	users      *UserService
	repo       UserRepository
	challenges ChallengeRepository
	dispatcher mail.Dispatcher
	assets     *storage.AssetStore
	log        *slog.Logger
}

func NewDispatchService(
	users *UserService,
	repo UserRepository,
	challenges ChallengeRepository,
	dispatcher mail.Dispatcher,
	assets *storage.AssetStore,
	log *slog.Logger,
) *DispatchService {
	if log == nil {
		log = slog.Default()
	}
	return &DispatchService{
		users:      users,
		repo:       repo,
		challenges: challenges,
		dispatcher: dispatcher,
		assets:     assets,
		log:        log,
	}
}

// SendChallenge dispatches the material for challengeNumber to the identified
// participant. Re-dispatch is always allowed, including after completion.
//
// The email_sent flag is recorded before the hand-off to the dispatcher:
// dispatch tracking is optimistic and best-effort, and a dispatcher failure
// after the mark is surfaced but never rolls the mark back.
func (s *DispatchService) SendChallenge(ctx context.Context, email, username string, challengeNumber int) error {
	user, err := s.users.Lookup(ctx, email, username)
	if err != nil {
		return err
	}

	challenge, err := s.challenges.GetByNumber(ctx, challengeNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChallengeNotFound
		}
		return fmt.Errorf("dispatch: %w", err)
	}

	msg, err := s.buildMessage(ctx, user, challenge)
	if err != nil {
		return err
	}

	if err := s.repo.MarkEmailSent(ctx, user.ID, challengeNumber); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	if err := s.dispatcher.Send(ctx, msg); err != nil {
		s.log.Error("mail hand-off failed after dispatch was recorded",
			"email", email, "challenge", challengeNumber, "err", err)
		return fmt.Errorf("dispatch: %w", err)
	}

	s.log.Info("challenge dispatched", "email", email, "challenge", challengeNumber)
	return nil
}

func (s *DispatchService) buildMessage(ctx context.Context, user types.User, challenge types.Challenge) (mail.Message, error) {
	html := challenge.Template.HTML
	if key := strings.TrimSpace(challenge.Template.BodyObjectKey); key != "" {
		if s.assets == nil {
			return mail.Message{}, fmt.Errorf("dispatch: challenge %d body is in object storage but no asset store is configured", challenge.Number)
		}
		body, err := s.assets.GetBody(ctx, key)
		if err != nil {
			return mail.Message{}, fmt.Errorf("dispatch: load challenge body %q: %w", key, err)
		}
		html = body
	}

	return mail.Message{
		From:            challenge.Template.From,
		To:              mail.Address(user.Username, user.Email),
		Subject:         challenge.Template.Subject,
		HTML:            html,
		ReplyTo:         challenge.Template.ReplyTo,
		Headers:         challenge.Template.Headers,
		ChallengeNumber: challenge.Number,
	}, nil
}
