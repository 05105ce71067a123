package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"qrlink/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySessionRepo is an in-memory LoginSessionRepository. ConfirmIfPending
// holds the mutex across check and write, so it gives the same atomicity the
// real backends do.
type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*entity.LoginSession
	clock    Clock
}

func newMemorySessionRepo(clock Clock) *memorySessionRepo {
	if clock == nil {
		clock = RealClock{}
	}
	return &memorySessionRepo{sessions: make(map[string]*entity.LoginSession), clock: clock}
}

func (r *memorySessionRepo) Create(ctx context.Context, session *entity.LoginSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	stored := *session
	r.sessions[session.TokenHash] = &stored
	return nil
}

func (r *memorySessionRepo) FindByTokenHash(ctx context.Context, hash string) (*entity.LoginSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[hash]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (r *memorySessionRepo) ConfirmIfPending(ctx context.Context, hash string, userID uuid.UUID, confirmedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[hash]
	if !ok || session.Status != entity.LoginStatusPending {
		return false, nil
	}
	session.Status = entity.LoginStatusConfirmed
	session.UserID = &userID
	session.ConfirmedAt = &confirmedAt
	return true, nil
}

func (r *memorySessionRepo) CleanupExpired(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	for hash, session := range r.sessions {
		if session.IsExpired(now) {
			delete(r.sessions, hash)
		}
	}
	return nil
}

type memoryUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*entity.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[uuid.UUID]*entity.User)}
}

func (r *memoryUserRepo) Create(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || !user.IsActive {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (r *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email && user.IsActive {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

type stubTokenIssuer struct{}

func (stubTokenIssuer) IssueAccessToken(userID string, role string) (string, time.Duration, error) {
	return "access-" + userID, 15 * time.Minute, nil
}

type qrTestEnv struct {
	service  *QRLoginService
	sessions *memorySessionRepo
	users    *memoryUserRepo
	clock    *fakeClock
}

func newQRTestEnv(t *testing.T) *qrTestEnv {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	codec := newTestCodec(t, clock)
	sessions := newMemorySessionRepo(clock)
	users := newMemoryUserRepo()

	svc := NewQRLoginService(
		sessions,
		users,
		nil,
		codec,
		stubTokenIssuer{},
		clock,
		QRLoginConfig{SessionTTL: 60 * time.Second, EnvelopeTTL: 120 * time.Second},
	)
	return &qrTestEnv{service: svc, sessions: sessions, users: users, clock: clock}
}

func (env *qrTestEnv) addUser(t *testing.T, email string) uuid.UUID {
	t.Helper()
	user := &entity.User{
		Email:    email,
		Role:     entity.UserRoleUser,
		IsActive: true,
	}
	require.NoError(t, env.users.Create(context.Background(), user))
	return user.ID
}

func TestCreateThenPollIsPending(t *testing.T) {
	env := newQRTestEnv(t)
	ctx := context.Background()

	created, err := env.service.Create(ctx, nil)
	require.NoError(t, err)
	require.NotEmpty(t, created.Token)
	assert.Equal(t, env.clock.now.Add(60*time.Second), created.ExpiresAt)

	result, err := env.service.Poll(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, PollStatusPending, result.Status)
	assert.Nil(t, result.UserID)
	assert.Empty(t, result.AccessToken)
}

func TestConfirmBindsFirstIdentityOnly(t *testing.T) {
	env := newQRTestEnv(t)
	ctx := context.Background()
	firstUser := env.addUser(t, "first@example.com")
	secondUser := env.addUser(t, "second@example.com")

	created, err := env.service.Create(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, env.service.Confirm(ctx, created.Token, firstUser, nil))

	err = env.service.Confirm(ctx, created.Token, secondUser, nil)
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	result, err := env.service.Poll(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, PollStatusConfirmed, result.Status)
	require.NotNil(t, result.UserID)
	assert.Equal(t, firstUser, *result.UserID)
}

func TestConfirmExpiredSession(t *testing.T) {
	env := newQRTestEnv(t)
	ctx := context.Background()
	userID := env.addUser(t, "user@example.com")

	created, err := env.service.Create(ctx, nil)
	require.NoError(t, err)

	env.clock.Advance(61 * time.Second)
	err = env.service.Confirm(ctx, created.Token, userID, nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestConfirmUnknownToken(t *testing.T) {
	env := newQRTestEnv(t)
	userID := env.addUser(t, "user@example.com")

	err := env.service.Confirm(context.Background(), "no-such-token", userID, nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPollUnknownToken(t *testing.T) {
	env := newQRTestEnv(t)

	_, err := env.service.Poll(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPollReportsDerivedExpiry(t *testing.T) {
	env := newQRTestEnv(t)
	ctx := context.Background()

	created, err := env.service.Create(ctx, nil)
	require.NoError(t, err)

	env.clock.Advance(61 * time.Second)
	result, err := env.service.Poll(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, PollStatusExpired, result.Status)
	assert.Nil(t, result.UserID)
	assert.Empty(t, result.AccessToken)
}

func TestConcurrentConfirmsHaveOneWinner(t *testing.T) {
	env := newQRTestEnv(t)
	ctx := context.Background()
	userA := env.addUser(t, "a@example.com")
	userB := env.addUser(t, "b@example.com")

	created, err := env.service.Create(ctx, nil)
	require.NoError(t, err)

	callers := []uuid.UUID{userA, userB, userA, userB}
	results := make([]error, len(callers))
	var wg sync.WaitGroup
	for i, userID := range callers {
		wg.Add(1)
		go func(i int, userID uuid.UUID) {
			defer wg.Done()
			results[i] = env.service.Confirm(ctx, created.Token, userID, nil)
		}(i, userID)
	}
	wg.Wait()

	var successes, alreadyUsed int
	var winner int
	for i, err := range results {
		switch {
		case err == nil:
			successes++
			winner = i
		case err == ErrAlreadyUsed:
			alreadyUsed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, len(callers)-1, alreadyUsed)

	result, err := env.service.Poll(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, PollStatusConfirmed, result.Status)
	require.NotNil(t, result.UserID)
	assert.Equal(t, callers[winner], *result.UserID)
}

func TestEncodeDecodeConfirmScenario(t *testing.T) {
	env := newQRTestEnv(t)
	ctx := context.Background()
	userID := env.addUser(t, "user@example.com")

	created, err := env.service.Create(ctx, nil)
	require.NoError(t, err)

	result, err := env.service.Poll(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, PollStatusPending, result.Status)

	encoded, err := env.service.Encode(created.Token)
	require.NoError(t, err)

	decoded, err := env.service.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, created.Token, decoded)

	require.NoError(t, env.service.Confirm(ctx, decoded, userID, nil))

	result, err = env.service.Poll(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, PollStatusConfirmed, result.Status)
	require.NotNil(t, result.UserID)
	assert.Equal(t, userID, *result.UserID)
	assert.Equal(t, "access-"+userID.String(), result.AccessToken)
	assert.Equal(t, int64(900), result.ExpiresIn)
}

func TestCleanupExpiredRemovesOnlyStaleRows(t *testing.T) {
	env := newQRTestEnv(t)
	ctx := context.Background()

	stale, err := env.service.Create(ctx, nil)
	require.NoError(t, err)
	env.clock.Advance(61 * time.Second)
	fresh, err := env.service.Create(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, env.service.CleanupExpired(ctx))

	_, err = env.service.Poll(ctx, stale.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	result, err := env.service.Poll(ctx, fresh.Token)
	require.NoError(t, err)
	assert.Equal(t, PollStatusPending, result.Status)
}
