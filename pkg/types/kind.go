package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ManagementVerb identifies a container-management operation routed under the
// reserved /cvm path segment.
type ManagementVerb string

const (
	VerbCreateContainer ManagementVerb = "create_container"
	VerbStartContainer  ManagementVerb = "start_container"
	VerbStopContainer   ManagementVerb = "stop_container"
	VerbRemoveContainer ManagementVerb = "remove_container"
	VerbListContainers  ManagementVerb = "list_containers"
	VerbStateChange     ManagementVerb = "state_change"
	VerbScheduledTask   ManagementVerb = "scheduled_task"
)

var managementVerbs = map[ManagementVerb]bool{
	VerbCreateContainer: true,
	VerbStartContainer:  true,
	VerbStopContainer:   true,
	VerbRemoveContainer: true,
	VerbListContainers:  true,
	VerbStateChange:     true,
	VerbScheduledTask:   true,
}

// TransactionKind is the tagged kind of a transaction. A request kind carries
// the target agent and the subpath forwarded to it; a management kind carries
// only the verb. The zero value is not a valid kind.
type TransactionKind struct {
	// Verb is set for management kinds and empty for agent requests.
	Verb ManagementVerb
	// Agent and Subpath are set for request kinds.
	Agent   AgentID
	Subpath string
}

// RequestKind builds the kind for an external API call to agent.
func RequestKind(agent AgentID, subpath string) TransactionKind {
	return TransactionKind{Agent: agent, Subpath: subpath}
}

// ManagementKind builds the kind for a management verb.
func ManagementKind(verb ManagementVerb) TransactionKind {
	return TransactionKind{Verb: verb}
}

// IsRequest reports whether the kind targets an agent.
func (k TransactionKind) IsRequest() bool {
	return k.Verb == ""
}

// String renders the slash-path wire form: "/cvm/<verb>" for management
// kinds, "/0x<32hex>/<subpath>" for requests.
func (k TransactionKind) String() string {
	if !k.IsRequest() {
		return "/cvm/" + string(k.Verb)
	}
	return "/" + k.Agent.String() + "/" + k.Subpath
}

// ParseKind parses the slash-path wire form. Unknown /cvm verbs and first
// segments that are neither "cvm" nor a 0x-prefixed agent ID yield ok=false.
// A request path without a second segment has an empty subpath.
func ParseKind(path string) (TransactionKind, bool) {
	path = strings.TrimPrefix(path, "/")
	if rest, found := strings.CutPrefix(path, "cvm/"); found {
		verb := ManagementVerb(rest)
		if !managementVerbs[verb] {
			return TransactionKind{}, false
		}
		return ManagementKind(verb), true
	}
	if !strings.HasPrefix(path, "0x") {
		return TransactionKind{}, false
	}
	seg, subpath, _ := strings.Cut(path, "/")
	agent, err := ParseAgentID(seg)
	if err != nil {
		return TransactionKind{}, false
	}
	return RequestKind(agent, subpath), true
}

// MarshalJSON encodes the kind as its wire-path string.
func (k TransactionKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes the wire-path string form.
func (k *TransactionKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseKind(s)
	if !ok {
		return fmt.Errorf("invalid transaction kind %q", s)
	}
	*k = parsed
	return nil
}
