package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIDRoundTrip(t *testing.T) {
	original := NewSessionID()
	assert.False(t, original.IsNil())

	parsed, err := ParseSessionID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	_, err = ParseSessionID("not-a-uuid")
	assert.Error(t, err)
}

// Session IDs must travel as canonical UUID strings in JSON, not byte arrays.
func TestSessionIDJSON(t *testing.T) {
	sessionID := NewSessionID()

	raw, err := json.Marshal(sessionID)
	require.NoError(t, err)
	assert.Equal(t, `"`+sessionID.String()+`"`, string(raw))

	var decoded SessionID
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, sessionID, decoded)

	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &decoded))
}

func TestSessionIDIsNil(t *testing.T) {
	var zero SessionID
	assert.True(t, zero.IsNil())
}
