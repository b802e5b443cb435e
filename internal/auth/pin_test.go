package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/floorreports/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("pin-hmac-key")

type fakeUsers struct {
	count   int
	created []*model.User
	lookups map[string]string
	hashes  map[string]string
}

func (f *fakeUsers) CountAll(context.Context) (int, error) { return f.count, nil }

func (f *fakeUsers) Create(_ context.Context, u *model.User, lookup, hash string) error {
	f.created = append(f.created, u)
	if f.lookups == nil {
		f.lookups = map[string]string{}
		f.hashes = map[string]string{}
	}
	f.lookups[lookup] = u.ID
	f.hashes[u.ID] = hash
	return nil
}

func (f *fakeUsers) GetByPinLookup(_ context.Context, lookup string) (*model.User, string, error) {
	id, ok := f.lookups[lookup]
	if !ok {
		return nil, "", errors.New("not found")
	}
	for _, u := range f.created {
		if u.ID == id {
			return u, f.hashes[id], nil
		}
	}
	return nil, "", errors.New("not found")
}

func TestValidPin(t *testing.T) {
	cases := map[string]bool{
		"1234":      true,
		"12345678":  true,
		"123":       false,
		"123456789": false,
		"12a4":      false,
		"":          false,
		"١٢٣٤":      false,
	}
	for pin, want := range cases {
		assert.Equal(t, want, ValidPin(pin), "pin %q", pin)
	}
}

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("4821")
	require.NoError(t, err)
	assert.True(t, Verify(hash, "4821"))
	assert.False(t, Verify(hash, "4822"))
}

func TestPinLookupIsKeyed(t *testing.T) {
	a := PinLookup(testKey, "1234")
	assert.Equal(t, a, PinLookup(testKey, "1234"))
	assert.NotEqual(t, a, PinLookup([]byte("other-key"), "1234"))
	assert.NotEqual(t, a, PinLookup(testKey, "4321"))
	assert.Len(t, a, 64)
}

func TestSeedFirstAdmin(t *testing.T) {
	users := &fakeUsers{}
	require.NoError(t, SeedFirstAdmin(context.Background(), users, testKey, "Beheerder", "9999"))
	require.Len(t, users.created, 1)
	assert.Equal(t, model.RoleAdmin, users.created[0].Role)
	assert.Equal(t, "Beheerder", users.created[0].Name)

	u, err := Authenticate(context.Background(), users, testKey, "9999")
	require.NoError(t, err)
	assert.Equal(t, users.created[0].ID, u.ID)
}

func TestSeedFirstAdminSkips(t *testing.T) {
	t.Run("users exist", func(t *testing.T) {
		users := &fakeUsers{count: 2}
		require.NoError(t, SeedFirstAdmin(context.Background(), users, testKey, "Beheerder", "9999"))
		assert.Empty(t, users.created)
	})
	t.Run("not configured", func(t *testing.T) {
		users := &fakeUsers{}
		require.NoError(t, SeedFirstAdmin(context.Background(), users, testKey, "", ""))
		assert.Empty(t, users.created)
	})
	t.Run("bad pin", func(t *testing.T) {
		users := &fakeUsers{}
		err := SeedFirstAdmin(context.Background(), users, testKey, "Beheerder", "12")
		assert.ErrorIs(t, err, ErrInvalidPin)
	})
}

func TestAuthenticateWrongPin(t *testing.T) {
	users := &fakeUsers{}
	require.NoError(t, SeedFirstAdmin(context.Background(), users, testKey, "Beheerder", "9999"))

	_, err := Authenticate(context.Background(), users, testKey, "abc")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = Authenticate(context.Background(), users, testKey, "1111")
	assert.Error(t, err)
}
