package services

import (
	"context"
	"sync"

	"github.com/phishrange/apiserver/internal/mail"
	"github.com/phishrange/apiserver/internal/store"
	"github.com/phishrange/apiserver/types"
)

// fakeUserRepo is an in-memory UserRepository with the same monotonic
// semantics as the Postgres upserts. Safe for concurrent use.
type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[string]*types.User // keyed by email

	createErr error
	markErr   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[string]*types.User)}
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return cloneUser(*user), nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return types.User{}, f.createErr
	}
	if _, ok := f.users[user.Email]; ok {
		return types.User{}, store.ErrDuplicate
	}
	user.ID = f.nextID
	f.nextID++
	user.Progress = make(map[int]types.ChallengeProgress)
	stored := cloneUser(user)
	f.users[user.Email] = &stored
	return cloneUser(stored), nil
}

func (f *fakeUserRepo) MarkEmailSent(ctx context.Context, userID, challengeNumber int) error {
	return f.mark(userID, challengeNumber, func(p *types.ChallengeProgress) {
		p.EmailSent = true
	})
}

func (f *fakeUserRepo) MarkCompleted(ctx context.Context, userID, challengeNumber int) error {
	return f.mark(userID, challengeNumber, func(p *types.ChallengeProgress) {
		p.Completed = true
	})
}

func (f *fakeUserRepo) mark(userID, challengeNumber int, set func(*types.ChallengeProgress)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	for _, user := range f.users {
		if user.ID != userID {
			continue
		}
		progress := user.Progress[challengeNumber]
		set(&progress)
		user.Progress[challengeNumber] = progress
		return nil
	}
	return store.ErrNotFound
}

// progressOf reads the stored state directly, bypassing the service layer.
func (f *fakeUserRepo) progressOf(email string, challengeNumber int) types.ChallengeProgress {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return types.ChallengeProgress{}
	}
	return user.Progress[challengeNumber]
}

func cloneUser(user types.User) types.User {
	progress := make(map[int]types.ChallengeProgress, len(user.Progress))
	for number, state := range user.Progress {
		progress[number] = state
	}
	user.Progress = progress
	return user
}

type fakeChallengeRepo struct {
	challenges map[int]types.Challenge
}

func newFakeChallengeRepo(challenges ...types.Challenge) *fakeChallengeRepo {
	repo := &fakeChallengeRepo{challenges: make(map[int]types.Challenge)}
	for _, challenge := range challenges {
		repo.challenges[challenge.Number] = challenge
	}
	return repo
}

func (f *fakeChallengeRepo) GetByNumber(ctx context.Context, number int) (types.Challenge, error) {
	challenge, ok := f.challenges[number]
	if !ok {
		return types.Challenge{}, store.ErrNotFound
	}
	return challenge, nil
}

// fakeDispatcher records every message handed to it.
type fakeDispatcher struct {
	mu      sync.Mutex
	sent    []mail.Message
	sendErr error
}

func (f *fakeDispatcher) Send(ctx context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeDispatcher) messages() []mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mail.Message(nil), f.sent...)
}
