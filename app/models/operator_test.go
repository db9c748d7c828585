package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorIssueAPIKey(t *testing.T) {
	op := &Operator{Name: "Door Crew", Email: "door@example.com", Status: OperatorStatusActive}

	key, err := op.IssueAPIKey()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key, "tfx_"))

	assert.Len(t, op.APIKeyHash, 64)
	assert.Equal(t, key[:16], op.APIKeyPrefix)
	assert.NotNil(t, op.APIKeyCreatedAt)
	assert.Nil(t, op.APIKeyLastUsedAt)
	assert.Equal(t, HashAPIKey(key), op.APIKeyHash)
	assert.True(t, op.IsActive())
}

func TestOperatorReissueInvalidatesOldKey(t *testing.T) {
	op := &Operator{Status: OperatorStatusActive}
	first, err := op.IssueAPIKey()
	require.NoError(t, err)
	second, err := op.IssueAPIKey()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, HashAPIKey(first), op.APIKeyHash)
}

func TestOperatorDisabledIsNotActive(t *testing.T) {
	op := &Operator{Status: OperatorStatusDisabled}
	_, err := op.IssueAPIKey()
	require.NoError(t, err)
	assert.False(t, op.IsActive())

	var missing *Operator
	assert.False(t, missing.IsActive())
}

func TestHashAPIKeyTrimsWhitespace(t *testing.T) {
	assert.Equal(t, HashAPIKey("tfx_abc"), HashAPIKey("  tfx_abc\n"))
}
