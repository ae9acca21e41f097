package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewManager(Config{SecretKey: "test-secret-key-at-least-32-characters", Issuer: "eduhub", TTL: time.Minute})

	token, err := m.Generate("student-42", "student")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "student-42", claims.Subject)
	assert.Equal(t, "student", claims.Role)
	assert.Equal(t, "eduhub", claims.Issuer)

	userID, err := m.ExtractUserID(token)
	require.NoError(t, err)
	assert.Equal(t, "student-42", userID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m1 := NewManager(Config{SecretKey: "test-secret-key-at-least-32-characters"})
	m2 := NewManager(Config{SecretKey: "another-secret-key-also-32-characters!"})

	token, err := m1.Generate("student-42", "student")
	require.NoError(t, err)

	_, err = m2.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewManager(Config{SecretKey: "test-secret-key-at-least-32-characters", TTL: -time.Minute})

	token, err := m.Generate("student-42", "student")
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.Error(t, err)
}
