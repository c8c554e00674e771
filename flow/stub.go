package flow

import "github.com/ovdk-go/fastpath/action"

// StubTable is the placeholder exception/action-port table whose
// lookup always misses with a default DROP action list (GLOSSARY:
// "Stub table"), used to terminate the action-port path (spec.md
// §4.4.5) without a real hash lookup.
type StubTable struct{}

// NewStubTable returns a ready-to-use stub table.
func NewStubTable() *StubTable { return &StubTable{} }

// DefaultActions is the single-element DROP list StubTable resolves
// any buffer to.
func (*StubTable) DefaultActions() []action.Action {
	return []action.Action{action.NewDrop()}
}
