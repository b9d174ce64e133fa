package state

import (
	"fmt"
	"strings"

	"github.com/melih-ucgun/qvmstate/internal/types"
)

// AddTransaction appends a new transaction to history, trims it to
// MaxHistory entries and saves state.
func (m *Manager) AddTransaction(tx types.Transaction) error {
	m.mu.Lock()
	m.Current.History = append(m.Current.History, tx)
	if m.MaxHistory > 0 && len(m.Current.History) > m.MaxHistory {
		m.Current.History = m.Current.History[len(m.Current.History)-m.MaxHistory:]
	}
	m.mu.Unlock()

	return m.Save()
}

// GetTransactions returns a copy of history.
func (m *Manager) GetTransactions() []types.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	history := make([]types.Transaction, len(m.Current.History))
	copy(history, m.Current.History)
	return history
}

// GetTransaction finds a transaction by ID or unique ID prefix.
func (m *Manager) GetTransaction(id string) (types.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []types.Transaction
	for _, tx := range m.Current.History {
		if tx.ID == id {
			return tx, nil
		}
		if strings.HasPrefix(tx.ID, id) {
			found = append(found, tx)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return types.Transaction{}, fmt.Errorf("transaction not found: %s", id)
	default:
		return types.Transaction{}, fmt.Errorf("transaction prefix %s is ambiguous (%d matches)", id, len(found))
	}
}
