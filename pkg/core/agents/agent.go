package agents

import "time"

// AgentStatus is an agent's processing status.
type AgentStatus int

const (
	AgentIdle AgentStatus = iota
	AgentWorking
	AgentDone
	AgentError
)

func (s AgentStatus) String() string {
	switch s {
	case AgentIdle:
		return "idle"
	case AgentWorking:
		return "working"
	case AgentDone:
		return "done"
	case AgentError:
		return "error"
	default:
		return "unknown"
	}
}

func agentStatusFromWire(name string) (AgentStatus, bool) {
	switch name {
	case "idle":
		return AgentIdle, true
	case "working":
		return AgentWorking, true
	case "done":
		return AgentDone, true
	case "error":
		return AgentError, true
	default:
		return AgentIdle, false
	}
}

// Agent modes.
const (
	ModeCoding      = "coding"
	ModeComputerUse = "computer_use"
)

// SubAgentInfo describes one delegated worker reported by the backend.
type SubAgentInfo struct {
	ID     string
	Name   string
	Status string
}

// Agent is one conversation multiplexed over the shared channel. All
// mutation goes through Orchestrator methods; direct field writes from
// outside this package break the streaming and interrupt invariants.
type Agent struct {
	ID         string
	WorkingDir string
	Status     AgentStatus
	Mode       string
	Messages   []Message

	// SessionID is the server-side resumption token from the last result.
	SessionID string
	// CostUSD accumulates reported turn costs.
	CostUSD float64
	// LastTurnDuration is the reported duration of the last turn.
	LastTurnDuration time.Duration

	UnreadCount int
	SubAgents   []SubAgentInfo

	IsProcessing     bool
	InterruptPending bool
	interruptTimer   *time.Timer

	// streamMessageID identifies the assistant message currently being
	// assembled; at most one stream is in flight per agent.
	streamMessageID string
	streamBuffer    string

	// Computer-use progress. Reset together with Mode, never separately.
	ComputerIteration  int
	LastScreenshotData string

	createdAt time.Time
}

// ForceStopAvailable reports whether a soft interrupt ran out its grace
// window, making the next stop action a local hard reset.
func (a *Agent) ForceStopAvailable() bool {
	return a.InterruptPending && a.interruptTimer == nil
}

// lastMessage returns the newest message, or nil.
func (a *Agent) lastMessage() Message {
	if len(a.Messages) == 0 {
		return nil
	}
	return a.Messages[len(a.Messages)-1]
}

// findPermission returns the permission message with the given request id.
func (a *Agent) findPermission(requestID string) *PermissionRequestMessage {
	for i := len(a.Messages) - 1; i >= 0; i-- {
		if p, ok := a.Messages[i].(*PermissionRequestMessage); ok && p.RequestID == requestID {
			return p
		}
	}
	return nil
}

// clearInterruptLocked cancels the interrupt timer and flags. Caller holds
// the orchestrator mutex.
func (a *Agent) clearInterruptLocked() {
	if a.interruptTimer != nil {
		a.interruptTimer.Stop()
		a.interruptTimer = nil
	}
	a.InterruptPending = false
}
