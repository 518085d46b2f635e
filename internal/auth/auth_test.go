package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/intake-desk/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	token, exp, err := tm.GenerateToken("staff-1", domain.StaffRoleAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.StaffID)
	assert.Equal(t, domain.StaffRoleAdmin, claims.Role)
}

func TestTokenRejectsOtherSecretAndExpiry(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	token, _, err := tm.GenerateToken("staff-1", domain.StaffRoleAgent)
	require.NoError(t, err)

	_, err = NewTokenManager("other", 30).ParseToken(token)
	assert.Error(t, err)

	expired := NewTokenManager("secret", 1)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.GenerateToken("staff-1", domain.StaffRoleAgent)
	require.NoError(t, err)
	_, err = tm.ParseToken(old)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "s3cret-pass"))
	assert.Error(t, ComparePassword(hash, "wrong"))
}

func TestPasswordPolicyAndRehash(t *testing.T) {
	_, err := HashPassword("short", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrWeakPassword)

	hash, err := HashPassword("long-enough", bcrypt.MinCost)
	require.NoError(t, err)
	assert.False(t, NeedsRehash(hash, bcrypt.MinCost))
	assert.True(t, NeedsRehash(hash, bcrypt.MinCost+1))
	assert.False(t, NeedsRehash("not-a-hash", bcrypt.MinCost))
}
