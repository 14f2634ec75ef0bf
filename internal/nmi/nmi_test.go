package nmi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyValidatorAcceptsEverything(t *testing.T) {
	v, err := NewValidator(nil, nil)
	require.NoError(t, err)
	assert.True(t, v.Valid("NMI123456"))
	assert.True(t, v.Valid(""))
}

func TestIncludePatternsAreAnchored(t *testing.T) {
	v, err := NewValidator([]string{"61[0-9]{8}"}, nil)
	require.NoError(t, err)
	assert.True(t, v.Valid("6112345678"))
	assert.False(t, v.Valid("x6112345678"), "must not match a substring")
	assert.False(t, v.Valid("6112345678x"))
	assert.False(t, v.Valid("7012345678"))
}

func TestExcludeWinsOverInclude(t *testing.T) {
	v, err := NewValidator([]string{"61[0-9]{8}"}, []string{"6199[0-9]{6}"})
	require.NoError(t, err)
	assert.True(t, v.Valid("6112345678"))
	assert.False(t, v.Valid("6199345678"))
}

func TestSemicolonJoinedGroups(t *testing.T) {
	v, err := NewValidator([]string{"61[0-9]{8}; 70[0-9]{8}"}, nil)
	require.NoError(t, err)
	assert.True(t, v.Valid("6112345678"))
	assert.True(t, v.Valid("7012345678"))
	assert.False(t, v.Valid("8012345678"))
}

func TestExcludeOnlyValidator(t *testing.T) {
	v, err := NewValidator(nil, []string{"TEST.*"})
	require.NoError(t, err)
	assert.True(t, v.Valid("6112345678"))
	assert.False(t, v.Valid("TEST0001"))
}

func TestBadPatternFailsCompile(t *testing.T) {
	_, err := NewValidator([]string{"61[0-9"}, nil)
	assert.Error(t, err)

	_, err = NewValidator(nil, []string{"("})
	assert.Error(t, err)
}
