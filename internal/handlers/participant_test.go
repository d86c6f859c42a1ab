package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/phishrange/apiserver/internal/mail"
	"github.com/phishrange/apiserver/internal/services"
	"github.com/phishrange/apiserver/internal/store"
	"github.com/phishrange/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The handler tests run real services over in-memory repositories and a
// recording dispatcher; only the HTTP layer and the database are fake.

type memUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[string]*types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, users: make(map[string]*types.User)}
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	out := *user
	out.Progress = make(map[int]types.ChallengeProgress, len(user.Progress))
	for number, state := range user.Progress {
		out.Progress[number] = state
	}
	return out, nil
}

func (m *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Email]; ok {
		return types.User{}, store.ErrDuplicate
	}
	user.ID = m.nextID
	m.nextID++
	user.Progress = make(map[int]types.ChallengeProgress)
	m.users[user.Email] = &user
	return user, nil
}

func (m *memUserRepo) MarkEmailSent(ctx context.Context, userID, challengeNumber int) error {
	return m.mark(userID, challengeNumber, true, false)
}

func (m *memUserRepo) MarkCompleted(ctx context.Context, userID, challengeNumber int) error {
	return m.mark(userID, challengeNumber, false, true)
}

func (m *memUserRepo) mark(userID, challengeNumber int, emailSent, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID != userID {
			continue
		}
		progress := user.Progress[challengeNumber]
		progress.EmailSent = progress.EmailSent || emailSent
		progress.Completed = progress.Completed || completed
		user.Progress[challengeNumber] = progress
		return nil
	}
	return store.ErrNotFound
}

type memChallengeRepo struct {
	challenges map[int]types.Challenge
}

func (m *memChallengeRepo) GetByNumber(ctx context.Context, number int) (types.Challenge, error) {
	challenge, ok := m.challenges[number]
	if !ok {
		return types.Challenge{}, store.ErrNotFound
	}
	return challenge, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (d *recordingDispatcher) Send(ctx context.Context, msg mail.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return nil
}

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	userRepo := newMemUserRepo()
	challengeRepo := &memChallengeRepo{challenges: map[int]types.Challenge{
		1: {ID: 1, Number: 1, Flag: "CTF{abc}", CompleteMessage: "Nice!",
			Template: types.DispatchTemplate{From: "training@phishrange.example", Subject: "Challenge 1", HTML: "<p>go</p>"}},
	}}

	users := services.NewUserService(userRepo)
	dispatch := services.NewDispatchService(users, userRepo, challengeRepo, &recordingDispatcher{}, nil, nil)
	flags := services.NewFlagService(users, userRepo, challengeRepo)

	router := chi.NewRouter()
	ParticipantRouter(router, users, dispatch, flags)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, router http.Handler, email, username string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, router, http.MethodPost, "/participants/register",
		IdentityRequest{Email: email, Username: username})
}

func TestRegisterEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := register(t, router, "a@x.com", "alice")
	assert.Equal(t, http.StatusCreated, rec.Code)

	var user types.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "alice", user.Username)

	// Same pair again: idempotent.
	rec = register(t, router, "a@x.com", "alice")
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Different username: conflict.
	rec = register(t, router, "a@x.com", "bob")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterEndpointRejectsMissingFields(t *testing.T) {
	router := newTestRouter(t)

	rec := register(t, router, "", "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookupEndpoint(t *testing.T) {
	router := newTestRouter(t)
	register(t, router, "a@x.com", "alice")

	rec := doJSON(t, router, http.MethodPost, "/participants/lookup",
		IdentityRequest{Email: "a@x.com", Username: "alice"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/participants/lookup",
		IdentityRequest{Email: "a@x.com", Username: "mallory"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/participants/lookup",
		IdentityRequest{Email: "nobody@x.com", Username: "alice"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDispatchEndpoint(t *testing.T) {
	router := newTestRouter(t)
	register(t, router, "a@x.com", "alice")

	rec := doJSON(t, router, http.MethodPost, "/challenges/1/dispatch",
		IdentityRequest{Email: "a@x.com", Username: "alice"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Progress now shows the dispatch.
	rec = doJSON(t, router, http.MethodPost, "/participants/lookup",
		IdentityRequest{Email: "a@x.com", Username: "alice"})
	var user types.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.True(t, user.ProgressFor(1).EmailSent)

	rec = doJSON(t, router, http.MethodPost, "/challenges/99/dispatch",
		IdentityRequest{Email: "a@x.com", Username: "alice"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitEndpoint(t *testing.T) {
	router := newTestRouter(t)
	register(t, router, "a@x.com", "alice")

	rec := doJSON(t, router, http.MethodPost, "/challenges/1/submit",
		SubmitRequest{Email: "a@x.com", Username: "alice", Flag: "CTF{abc}"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result types.SubmissionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Correct)
	assert.Equal(t, "Nice!", result.Message)

	// Wrong candidate after completion is still a plain incorrect.
	rec = doJSON(t, router, http.MethodPost, "/challenges/1/submit",
		SubmitRequest{Email: "a@x.com", Username: "alice", Flag: "wrong"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Correct)

	rec = doJSON(t, router, http.MethodPost, "/challenges/99/submit",
		SubmitRequest{Email: "a@x.com", Username: "alice", Flag: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/challenges/1/submit",
		SubmitRequest{Email: "a@x.com", Username: "mallory", Flag: "CTF{abc}"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitEndpointBadChallengeNumber(t *testing.T) {
	router := newTestRouter(t)
	register(t, router, "a@x.com", "alice")

	for _, raw := range []string{"0", "-1", "abc"} {
		rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/challenges/%s/submit", raw),
			SubmitRequest{Email: "a@x.com", Username: "alice", Flag: "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "challenge number %q", raw)
	}
}
