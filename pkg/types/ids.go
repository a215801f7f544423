package types

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AgentID is a 128-bit content-addressed identifier for an agent. IDs derived
// from the same name are equal across nodes; the byte layout is a valid
// version-4, RFC-4122-variant UUID so the ID can double as a container UUID.
type AgentID [16]byte

// AgentIDFromName derives the stable AgentID for a user-supplied name by
// percent-encoding the name, hashing it with SHA-1 and masking the version
// and variant bits. An empty name yields a fresh random ID.
func AgentIDFromName(name string) AgentID {
	if name == "" {
		return AgentID(uuid.New())
	}
	sum := sha1.Sum([]byte(percentEncode(name)))
	var id AgentID
	copy(id[:], sum[:16])
	id[6] = (id[6] & 0x0f) | 0x40 // version 4
	id[8] = (id[8] & 0x3f) | 0x80 // RFC-4122 variant
	return id
}

// percentEncode escapes every non-alphanumeric byte as %XX.
func percentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('0' <= c && c <= '9') || ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') {
			b.WriteByte(c)
		} else {
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}

// ParseAgentID parses the 0x-prefixed 32-hex-digit form. It is the total
// inverse of String.
func ParseAgentID(s string) (AgentID, error) {
	var id AgentID
	if !strings.HasPrefix(s, "0x") {
		return id, fmt.Errorf("agent id %q: missing 0x prefix", s)
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return id, fmt.Errorf("agent id %q: %w", s, err)
	}
	if len(raw) != 16 {
		return id, fmt.Errorf("agent id %q: expected 16 bytes, got %d", s, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the 0x-prefixed hex form.
func (id AgentID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// UUID reinterprets the ID bytes as a UUID.
func (id AgentID) UUID() uuid.UUID {
	return uuid.UUID(id)
}

// AgentIDFromUUID reinterprets UUID bytes as an AgentID.
func AgentIDFromUUID(u uuid.UUID) AgentID {
	return AgentID(u)
}

// IsZero reports whether the ID is the all-zero value.
func (id AgentID) IsZero() bool {
	return id == AgentID{}
}

// MarshalText implements encoding.TextMarshaler using the 0x-hex form.
func (id AgentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AgentID) UnmarshalText(text []byte) error {
	parsed, err := ParseAgentID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
