package types

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Transaction is the unified envelope for every operation flowing through the
// node: external agent requests and management verbs alike. Method and Header
// travel with the in-memory transaction but are excluded from serialisation;
// only the routable fields are replicated through the log.
type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	Kind      TransactionKind `json:"tx_type"`
	Method    string          `json:"-"`
	Header    http.Header     `json:"-"`
	Payload   []byte          `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Sender    string          `json:"sender,omitempty"`
	// LogIndex is zero until the consensus layer assigns the commit index.
	LogIndex uint64 `json:"log_index"`
}

// NewTransaction creates a transaction with a fresh ID and the current
// timestamp. LogIndex starts at zero and is set by consensus.
func NewTransaction(kind TransactionKind, payload []byte, sender string, method string, header http.Header) Transaction {
	if header == nil {
		header = http.Header{}
	}
	return Transaction{
		ID:        uuid.New(),
		Kind:      kind,
		Method:    method,
		Header:    header,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Sender:    sender,
	}
}

// Equal reports transaction identity; two transactions are the same iff their
// IDs match.
func (t Transaction) Equal(other Transaction) bool {
	return t.ID == other.ID
}

// Less orders transactions by their assigned log index.
func (t Transaction) Less(other Transaction) bool {
	return t.LogIndex < other.LogIndex
}

func (t Transaction) String() string {
	return fmt.Sprintf("Transaction(id=%s, kind=%s, index=%d)", t.ID, t.Kind, t.LogIndex)
}

// TransactionStatus is the pool-visible lifecycle state of a transaction.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusSuccess    TransactionStatus = "success"
	StatusError      TransactionStatus = "error"
)

// APIRequestPayload is the serialised body of an external API call.
type APIRequestPayload struct {
	Method  string      `json:"method"`
	Headers [][2]string `json:"headers"`
	Body    []byte      `json:"body"`
}

// StateChangePayload is the serialised body of a state-change transaction.
type StateChangePayload struct {
	ContractID        string `json:"contract_id"`
	Operation         string `json:"operation"`
	PreviousStateHash string `json:"previous_state_hash"`
}

// ScheduledTaskPayload is the serialised body of a scheduled-task
// transaction. Interval is seconds between runs, zero for one-shot tasks.
type ScheduledTaskPayload struct {
	ContractID    string    `json:"contract_id"`
	TaskName      string    `json:"task_name"`
	NextExecution time.Time `json:"next_execution"`
	Interval      uint64    `json:"interval"`
}
