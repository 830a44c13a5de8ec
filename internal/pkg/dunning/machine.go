package dunning

import (
	"github.com/qmuntal/stateless"
)

// AccountState is the progress of one account through a campaign run.
type AccountState string

const (
	StateIdentified AccountState = "identified"
	StateQueued     AccountState = "queued"
	StateActionSent AccountState = "action_sent"
	StateResponded  AccountState = "responded"
	StateEscalated  AccountState = "escalated"
	StateResolved   AccountState = "resolved"
	StateFailed     AccountState = "failed"
)

const (
	triggerQueue    = "queue"
	triggerSend     = "send"
	triggerRespond  = "respond"
	triggerEscalate = "escalate"
	triggerResolve  = "resolve"
	triggerFail     = "fail"
)

// newAccountMachine builds the per-account lifecycle. Queued accounts whose
// customer already paid or whose balance vanished finish without contact.
func newAccountMachine() *stateless.StateMachine {
	m := stateless.NewStateMachine(StateIdentified)

	m.Configure(StateIdentified).
		Permit(triggerQueue, StateQueued).
		Permit(triggerFail, StateFailed)

	m.Configure(StateQueued).
		Permit(triggerSend, StateActionSent).
		Permit(triggerRespond, StateResponded).
		Permit(triggerResolve, StateResolved).
		Permit(triggerFail, StateFailed)

	m.Configure(StateActionSent).
		PermitReentry(triggerSend).
		Permit(triggerEscalate, StateEscalated).
		Permit(triggerRespond, StateResponded).
		Permit(triggerResolve, StateResolved).
		Permit(triggerFail, StateFailed)

	m.Configure(StateEscalated)
	m.Configure(StateResponded)
	m.Configure(StateResolved)
	m.Configure(StateFailed)
	return m
}

func stateOf(m *stateless.StateMachine) AccountState {
	return m.MustState().(AccountState)
}
