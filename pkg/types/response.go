package types

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// PoolResponse is the pool's record of a transaction's progress, returned on
// submission and updated as the transaction moves through the pipeline.
type PoolResponse struct {
	TxID   uuid.UUID         `json:"tx_id"`
	Status TransactionStatus `json:"status"`
	Result json.RawMessage   `json:"result,omitempty"`
}

// StructuredResponse is the envelope agents answer with. The known fields are
// lifted out; everything else is preserved bit-faithfully in Output so agent
// responses survive the round trip through the pool unchanged.
type StructuredResponse struct {
	StatusCode    *int
	EntityDiffs   []json.RawMessage
	StateDiffs    []json.RawMessage
	TransactionID string
	Output        map[string]json.RawMessage
}

// structuredKnown mirrors the named fields for (un)marshalling.
var structuredKnown = map[string]bool{
	"status_code":    true,
	"entity_diffs":   true,
	"state_diffs":    true,
	"transaction_id": true,
}

// UnmarshalJSON splits the object into the known fields and the free-form
// remainder. Non-object bodies are rejected; callers wrap those raw.
func (r *StructuredResponse) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = StructuredResponse{Output: map[string]json.RawMessage{}}
	for key, raw := range fields {
		if !structuredKnown[key] {
			r.Output[key] = raw
			continue
		}
		var err error
		switch key {
		case "status_code":
			err = json.Unmarshal(raw, &r.StatusCode)
		case "entity_diffs":
			err = json.Unmarshal(raw, &r.EntityDiffs)
		case "state_diffs":
			err = json.Unmarshal(raw, &r.StateDiffs)
		case "transaction_id":
			err = json.Unmarshal(raw, &r.TransactionID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON merges the named fields back over the free-form remainder.
func (r StructuredResponse) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	for key, raw := range r.Output {
		fields[key] = raw
	}
	if r.StatusCode != nil {
		raw, err := json.Marshal(r.StatusCode)
		if err != nil {
			return nil, err
		}
		fields["status_code"] = raw
	}
	if len(r.EntityDiffs) > 0 {
		raw, err := json.Marshal(r.EntityDiffs)
		if err != nil {
			return nil, err
		}
		fields["entity_diffs"] = raw
	}
	if len(r.StateDiffs) > 0 {
		raw, err := json.Marshal(r.StateDiffs)
		if err != nil {
			return nil, err
		}
		fields["state_diffs"] = raw
	}
	if r.TransactionID != "" {
		raw, err := json.Marshal(r.TransactionID)
		if err != nil {
			return nil, err
		}
		fields["transaction_id"] = raw
	}
	return json.Marshal(fields)
}

// OutputJSON returns the free-form remainder as a single JSON object. This is
// the body the client ultimately sees.
func (r StructuredResponse) OutputJSON() json.RawMessage {
	if len(r.Output) == 0 {
		return json.RawMessage("{}")
	}
	raw, err := json.Marshal(r.Output)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

// TxState is the terminal-or-not state carried by StatusWithProof.
type TxState string

const (
	StatePending    TxState = "pending"
	StateProcessing TxState = "processing"
	StateConfirmed  TxState = "confirmed"
	StateFailed     TxState = "failed"
)

// StatusWithProof is the externally observable status of a transaction,
// including the agent response and the attached proof once terminal.
type StatusWithProof struct {
	State      TxState
	Body       json.RawMessage
	HTTPStatus int
	Headers    http.Header
	Proof      json.RawMessage
}

// Pending returns the non-terminal pending status.
func Pending() StatusWithProof {
	return StatusWithProof{State: StatePending}
}

// Processing returns the non-terminal processing status.
func Processing() StatusWithProof {
	return StatusWithProof{State: StateProcessing}
}

// Confirmed builds a terminal success status.
func Confirmed(body json.RawMessage, httpStatus int, headers http.Header, proof json.RawMessage) StatusWithProof {
	return StatusWithProof{State: StateConfirmed, Body: body, HTTPStatus: httpStatus, Headers: headers, Proof: proof}
}

// Failed builds a terminal failure status.
func Failed(body json.RawMessage, httpStatus int, headers http.Header, proof json.RawMessage) StatusWithProof {
	return StatusWithProof{State: StateFailed, Body: body, HTTPStatus: httpStatus, Headers: headers, Proof: proof}
}

// Terminal reports whether the status is final.
func (s StatusWithProof) Terminal() bool {
	return s.State == StateConfirmed || s.State == StateFailed
}
