package types

import "time"

// Transaction statuses.
const (
	TxSuccess = "success"
	TxFailed  = "failed"
	TxTest    = "test"
)

// ResourceEntry, tek bir deklarasyonun son uygulanma durumunu temsil eder.
type ResourceEntry struct {
	ID          string    `json:"id"` // Function + declaration ID
	Function    string    `json:"function"`
	Declaration string    `json:"declaration"`
	VM          string    `json:"vm"`
	LastApplied time.Time `json:"last_applied"` // Son uygulanma zamanı
	Status      string    `json:"status"`       // success, failed
}

// AttributeChange is one old/new pair reported by a declaration.
type AttributeChange struct {
	Key string `json:"key"`
	Old string `json:"old"`
	New string `json:"new"`
}

// TransactionChange represents a single changed declaration within a transaction.
type TransactionChange struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Name    string            `json:"name"`
	Action  string            `json:"action"`
	Diff    string            `json:"diff,omitempty"`
	Changes []AttributeChange `json:"changes,omitempty"`
}

// Transaction represents a session of changes (e.g. one apply run).
type Transaction struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	Status    string              `json:"status"` // success, failed, test
	Changes   []TransactionChange `json:"changes"`
}

// State, tüm sistemin o anki snapshot'ıdır.
type State struct {
	Version   string                   `json:"version"` // State dosya versiyonu
	LastRun   time.Time                `json:"last_run"`
	Resources map[string]ResourceEntry `json:"resources"`
	History   []Transaction            `json:"history,omitempty"` // Log of actions
}

func NewState() *State {
	return &State{
		Version:   "1.0",
		Resources: make(map[string]ResourceEntry),
	}
}
