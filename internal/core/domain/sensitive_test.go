package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSensitiveFieldSet_Normalizes(t *testing.T) {
	t.Parallel()
	s := NewSensitiveFieldSet(" Password", "SECRET", "password", "", "  ")
	assert.Equal(t, []string{"password", "secret"}, s.Fields())
	assert.Equal(t, 2, s.Len())
}

func TestDefaultSensitiveFieldSet(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"password", "pwd", "salary", "secret"}, DefaultSensitiveFieldSet().Fields())
}

func TestSensitiveFieldSet_With(t *testing.T) {
	t.Parallel()
	base := NewSensitiveFieldSet("password")
	extended := base.With("SSN", "password")

	assert.Equal(t, []string{"password", "ssn"}, extended.Fields())
	assert.Equal(t, []string{"password"}, base.Fields(), "receiver must not change")
}

func TestSensitiveFieldSet_FieldsIsACopy(t *testing.T) {
	t.Parallel()
	s := NewSensitiveFieldSet("password")
	fields := s.Fields()
	fields[0] = "mutated"
	assert.Equal(t, []string{"password"}, s.Fields())
}

func TestSensitiveFieldSet_Matches(t *testing.T) {
	t.Parallel()
	s := DefaultSensitiveFieldSet()

	assert.True(t, s.Matches("SELECT PASSWORD FROM users"))
	assert.True(t, s.Matches("user_pwd"))
	assert.False(t, s.Matches("SELECT name FROM users"))
	assert.False(t, NewSensitiveFieldSet().Matches("password"))
}
