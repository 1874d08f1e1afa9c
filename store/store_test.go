package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	_ "github.com/viant/scy/kms/blowfish"
	"golang.org/x/oauth2"
)

func testSnapshot() *SessionSnapshot {
	return &SessionSnapshot{
		Authenticated: true,
		User: &User{
			ID:          1,
			Username:    "admin",
			Name:        "System Administrator",
			Role:        "admin",
			Permissions: []string{"external:api"},
		},
		Token: oauth2.Token{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			TokenType:    "Bearer",
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		description string
		store       Store
	}{
		{description: "memory", store: NewMemoryStore()},
		{description: "file", store: NewFileStore("mem://localhost/authkit/roundtrip")},
		{description: "secure", store: NewSecureStore("mem://localhost/authkit/secure/roundtrip")},
	}
	for _, testCase := range testCases {
		session := testSnapshot()
		assert.Nil(t, testCase.store.SaveSession(ctx, session), testCase.description)
		assert.Nil(t, testCase.store.SavePermissions(ctx, &PermissionSnapshot{
			Role:              "admin",
			CustomPermissions: []string{"external:api"},
		}), testCase.description)

		loaded, err := testCase.store.LoadSession(ctx)
		assert.Nil(t, err, testCase.description)
		assert.EqualValues(t, session.Authenticated, loaded.Authenticated, testCase.description)
		assert.EqualValues(t, session.User, loaded.User, testCase.description)
		assert.EqualValues(t, session.Token.AccessToken, loaded.Token.AccessToken, testCase.description)
		assert.EqualValues(t, session.Token.RefreshToken, loaded.Token.RefreshToken, testCase.description)

		permissions, err := testCase.store.LoadPermissions(ctx)
		assert.Nil(t, err, testCase.description)
		assert.EqualValues(t, "admin", permissions.Role, testCase.description)
		assert.EqualValues(t, []string{"external:api"}, permissions.CustomPermissions, testCase.description)
	}
}

func TestStore_TokenFastPath(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, ok := store.Token(ctx)
	assert.False(t, ok, "no session record yet")

	assert.Nil(t, store.SaveSession(ctx, testSnapshot()))
	token, ok := store.Token(ctx)
	assert.True(t, ok)
	assert.EqualValues(t, "access-1", token.AccessToken)
	assert.EqualValues(t, "refresh-1", token.RefreshToken)

	expiry := time.Now().Add(time.Hour)
	assert.Nil(t, store.SetAccessToken(ctx, "access-2", expiry))
	token, _ = store.Token(ctx)
	assert.EqualValues(t, "access-2", token.AccessToken)
	assert.EqualValues(t, "refresh-1", token.RefreshToken, "refresh token preserved")
}

func TestStore_SetAccessTokenAfterClear(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		description string
		store       Store
	}{
		{description: "memory", store: NewMemoryStore()},
		{description: "file", store: NewFileStore("mem://localhost/authkit/cleared")},
		{description: "secure", store: NewSecureStore("mem://localhost/authkit/secure/cleared")},
	}
	for _, testCase := range testCases {
		assert.Nil(t, testCase.store.SaveSession(ctx, testSnapshot()), testCase.description)
		assert.Nil(t, testCase.store.Clear(ctx), testCase.description)
		// A refresh settling after logout must not resurrect credentials.
		assert.Nil(t, testCase.store.SetAccessToken(ctx, "late", time.Time{}), testCase.description)
		loaded, err := testCase.store.LoadSession(ctx)
		assert.Nil(t, err, testCase.description)
		assert.Nil(t, loaded, testCase.description)
		_, ok := testCase.store.Token(ctx)
		assert.False(t, ok, testCase.description)
	}
}

func TestStore_ClearIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore("mem://localhost/authkit/idempotent")
	assert.Nil(t, store.SaveSession(ctx, testSnapshot()))
	assert.Nil(t, store.Clear(ctx))
	assert.Nil(t, store.Clear(ctx))
}

func TestMemoryStore_Seeding(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(
		WithSessionSnapshot(testSnapshot()),
		WithPermissionSnapshot(&PermissionSnapshot{Role: "admin"}),
	)
	session, err := store.LoadSession(ctx)
	assert.Nil(t, err)
	assert.True(t, session.Authenticated)
	permissions, err := store.LoadPermissions(ctx)
	assert.Nil(t, err)
	assert.EqualValues(t, "admin", permissions.Role)
}
