package service

import (
	"context"
	"errors"
	"testing"

	"example.com/blogapi/internal/models"
	"example.com/blogapi/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(t *testing.T, refresh bool) (*Authenticator, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemory()
	return NewAuthenticator(mem, nil, AuthOptions{BcryptCost: bcrypt.MinCost, RefreshIdentity: refresh}), mem
}

func creds(username, password string) CredentialsRequest {
	return CredentialsRequest{Username: username, Password: password}
}

func TestRegisterStoresHashedPassword(t *testing.T) {
	auth, mem := newTestAuth(t, true)
	ctx := context.Background()

	id, err := auth.Register(ctx, creds("alice", "pw1"), false)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	user, err := mem.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.NotEqual(t, "pw1", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pw1")))
	assert.False(t, user.IsAdmin)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	auth, _ := newTestAuth(t, true)
	ctx := context.Background()

	_, err := auth.Register(ctx, creds("alice", "pw1"), false)
	require.NoError(t, err)

	_, err = auth.Register(ctx, creds("alice", "other"), false)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegisterValidation(t *testing.T) {
	auth, _ := newTestAuth(t, true)
	ctx := context.Background()

	cases := []CredentialsRequest{
		creds("", "pw"),
		creds("alice", ""),
		creds("   ", "pw"),
		creds("this-username-is-definitely-longer-than-fifty-characters", "pw"),
	}
	for _, c := range cases {
		_, err := auth.Register(ctx, c, false)
		assert.ErrorIs(t, err, ErrInvalidRequest, "username=%q", c.Username)
	}
}

func TestRegisterTrimsUsername(t *testing.T) {
	auth, mem := newTestAuth(t, true)
	ctx := context.Background()

	id, err := auth.Register(ctx, creds(" bob\t", "pw1"), false)
	require.NoError(t, err)

	user, err := mem.GetUserByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.True(t, models.NewAudience(" bob").Contains(user.Username))

	_, err = auth.Register(ctx, creds("bob", "pw2"), false)
	assert.ErrorIs(t, err, ErrConflict)

	_, session, err := auth.Login(ctx, creds("bob ", "pw1"))
	require.NoError(t, err)
	assert.Equal(t, "bob", session.Username)
}

func TestLoginAndCurrentIdentity(t *testing.T) {
	auth, mem := newTestAuth(t, false)
	ctx := context.Background()

	id, err := auth.Register(ctx, creds("alice", "pw1"), false)
	require.NoError(t, err)

	token, session, err := auth.Login(ctx, creds("alice", "pw1"))
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, id, session.UserID)
	assert.Equal(t, HashToken(token), session.TokenHash)

	// only the hash is persisted
	_, err = mem.GetSession(ctx, token)
	assert.ErrorIs(t, err, store.ErrNotFound)

	who, err := auth.CurrentIdentity(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, who)
	assert.Equal(t, models.Identity{UserID: id, Username: "alice"}, *who)
}

func TestLoginFailures(t *testing.T) {
	auth, _ := newTestAuth(t, true)
	ctx := context.Background()

	_, err := auth.Register(ctx, creds("alice", "pw1"), false)
	require.NoError(t, err)

	_, _, err = auth.Login(ctx, creds("alice", "wrong"))
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = auth.Login(ctx, creds("nobody", "pw1"))
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = auth.Login(ctx, creds("", ""))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLogoutIsIdempotent(t *testing.T) {
	auth, _ := newTestAuth(t, true)
	ctx := context.Background()

	_, err := auth.Register(ctx, creds("alice", "pw1"), false)
	require.NoError(t, err)
	token, _, err := auth.Login(ctx, creds("alice", "pw1"))
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx, token))
	who, err := auth.CurrentIdentity(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, who)

	assert.NoError(t, auth.Logout(ctx, token))
	assert.NoError(t, auth.Logout(ctx, ""))
}

func TestCurrentIdentityRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("picks up admin grant", func(t *testing.T) {
		auth, mem := newTestAuth(t, true)
		id, err := auth.Register(ctx, creds("alice", "pw1"), false)
		require.NoError(t, err)
		token, _, err := auth.Login(ctx, creds("alice", "pw1"))
		require.NoError(t, err)

		require.NoError(t, mem.SetAdmin(id, true))
		who, err := auth.CurrentIdentity(ctx, token)
		require.NoError(t, err)
		require.NotNil(t, who)
		assert.True(t, who.IsAdmin)
	})

	t.Run("snapshot ignores admin grant", func(t *testing.T) {
		auth, mem := newTestAuth(t, false)
		id, err := auth.Register(ctx, creds("alice", "pw1"), false)
		require.NoError(t, err)
		token, _, err := auth.Login(ctx, creds("alice", "pw1"))
		require.NoError(t, err)

		require.NoError(t, mem.SetAdmin(id, true))
		who, err := auth.CurrentIdentity(ctx, token)
		require.NoError(t, err)
		require.NotNil(t, who)
		assert.False(t, who.IsAdmin)
	})

	t.Run("removed user is anonymous", func(t *testing.T) {
		auth, mem := newTestAuth(t, true)
		id, err := auth.Register(ctx, creds("alice", "pw1"), false)
		require.NoError(t, err)
		token, _, err := auth.Login(ctx, creds("alice", "pw1"))
		require.NoError(t, err)

		mem.RemoveUser(id)
		who, err := auth.CurrentIdentity(ctx, token)
		require.NoError(t, err)
		assert.Nil(t, who)
	})
}

func TestCurrentIdentityStoreError(t *testing.T) {
	auth, mem := newTestAuth(t, true)
	mem.ShouldFail = true

	who, err := auth.CurrentIdentity(context.Background(), "some-token")
	assert.Error(t, err)
	assert.Nil(t, who)
}

func TestAuthPublishesEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockEventPublisher(ctrl)
	auth := NewAuthenticator(store.NewMemory(), pub, AuthOptions{BcryptCost: bcrypt.MinCost, RefreshIdentity: true})
	ctx := context.Background()

	var got []models.EventType
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e models.Event) error {
			got = append(got, e.Type)
			assert.Equal(t, "alice", e.ActorName)
			return nil
		}).Times(3)

	_, err := auth.Register(ctx, creds("alice", "pw1"), false)
	require.NoError(t, err)
	token, _, err := auth.Login(ctx, creds("alice", "pw1"))
	require.NoError(t, err)
	require.NoError(t, auth.Logout(ctx, token))

	assert.Equal(t, []models.EventType{
		models.EventUserRegistered,
		models.EventUserLoggedIn,
		models.EventUserLoggedOut,
	}, got)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockEventPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down")).AnyTimes()

	auth := NewAuthenticator(store.NewMemory(), pub, AuthOptions{BcryptCost: bcrypt.MinCost})
	_, err := auth.Register(context.Background(), creds("alice", "pw1"), false)
	assert.NoError(t, err)
}
