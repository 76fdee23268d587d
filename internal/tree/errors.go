package tree

import "fmt"

// ProtocolError aborts a request turn. It signals a stale client or a forged
// request rather than a user mistake, and is never downgraded to a warning.
type ProtocolError struct {
	Op     string // "image" or "open"
	ItemID string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "tree " + e.Op + " request"
	if e.ItemID != "" {
		msg += fmt.Sprintf(" [%s]", e.ItemID)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolErr(op, itemID, reason string) error {
	return &ProtocolError{Op: op, ItemID: itemID, Reason: reason}
}
