package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentIDFromNameDeterministic(t *testing.T) {
	a := AgentIDFromName("echo")
	b := AgentIDFromName("echo")
	assert.Equal(t, a, b)

	c := AgentIDFromName("other")
	assert.NotEqual(t, a, c)
}

func TestAgentIDFromNameUUIDBits(t *testing.T) {
	names := []string{"echo", "openai_proxy", "a", "日本語", "name with spaces", "UPPER-case_09"}
	for _, name := range names {
		id := AgentIDFromName(name)
		assert.Equal(t, byte(0x40), id[6]&0xf0, "version nibble for %q", name)
		assert.Equal(t, byte(0x80), id[8]&0xc0, "variant bits for %q", name)
	}
}

func TestAgentIDFromNameEmptyIsRandom(t *testing.T) {
	a := AgentIDFromName("")
	b := AgentIDFromName("")
	assert.NotEqual(t, a, b)
}

func TestAgentIDHexRoundTrip(t *testing.T) {
	id := AgentIDFromName("round-trip")
	parsed, err := ParseAgentID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseAgentIDErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "missing prefix", input: "1234567890abcdef1234567890abcdef"},
		{name: "too short", input: "0x1234"},
		{name: "too long", input: "0x1234567890abcdef1234567890abcdef00"},
		{name: "not hex", input: "0xzz34567890abcdef1234567890abcdef"},
		{name: "empty", input: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAgentID(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestAgentIDUUIDRoundTrip(t *testing.T) {
	id := AgentIDFromName("uuid-view")
	assert.Equal(t, id, AgentIDFromUUID(id.UUID()))
}

func TestPercentEncode(t *testing.T) {
	assert.Equal(t, "abc123", percentEncode("abc123"))
	assert.Equal(t, "a%20b", percentEncode("a b"))
	assert.Equal(t, "%2Fcvm%2Fx", percentEncode("/cvm/x"))
}
