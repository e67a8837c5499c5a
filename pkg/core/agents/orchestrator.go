// Package agents maintains the collection of conversation agents
// multiplexed over the realtime channel: streamed-text reconciliation,
// the two-phase interrupt protocol, unread tracking, permission handling,
// and mode switching. Every mutation goes through a named method holding
// the orchestrator mutex, so the invariants (one in-flight stream per
// agent, at least one agent alive) hold at every mutation site.
package agents

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/relay-go/pkg/core"
	"github.com/relaydesk/relay-go/pkg/core/wire"
)

// interruptGrace is the window a soft interrupt gets before force-stop
// becomes available.
const interruptGrace = 5 * time.Second

// forceStopNote is appended locally when the user hard-stops a turn.
const forceStopNote = "Response stopped by user."

// Sender writes envelopes to the realtime channel. Send reports whether
// the channel was open; it never buffers.
type Sender interface {
	Send(env wire.Outbound) bool
}

// Orchestrator owns the agent collection. Construct with New; it starts
// with one agent so there is never an empty collection.
type Orchestrator struct {
	sender Sender
	logger *slog.Logger

	mu       sync.Mutex
	agents   map[string]*Agent
	order    []string // creation order, for deterministic selection
	activeID string

	// onChange, if set, runs after every mutation, outside the lock.
	onChange func()
}

// New builds an orchestrator with a single initial agent.
func New(sender Sender, logger *slog.Logger, onChange func()) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		sender:   sender,
		logger:   logger,
		agents:   make(map[string]*Agent),
		onChange: onChange,
	}
	first := o.newAgentLocked("")
	o.activeID = first.ID
	return o
}

func (o *Orchestrator) newAgentLocked(workingDir string) *Agent {
	a := &Agent{
		ID:         uuid.NewString(),
		WorkingDir: workingDir,
		Status:     AgentIdle,
		Mode:       ModeCoding,
		createdAt:  time.Now(),
	}
	o.agents[a.ID] = a
	o.order = append(o.order, a.ID)
	return a
}

func (o *Orchestrator) notify() {
	if o.onChange != nil {
		o.onChange()
	}
}

// CreateAgent adds a new agent and returns its id. The new agent does not
// steal focus.
func (o *Orchestrator) CreateAgent(workingDir string) string {
	o.mu.Lock()
	a := o.newAgentLocked(workingDir)
	o.mu.Unlock()
	o.notify()
	o.logger.Debug("agent created", "agent", a.ID, "dir", workingDir)
	return a.ID
}

// ActiveID returns the currently active agent id.
func (o *Orchestrator) ActiveID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeID
}

// Agent returns the agent with the given id, or nil.
func (o *Orchestrator) Agent(id string) *Agent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.agents[id]
}

// Active returns the active agent.
func (o *Orchestrator) Active() *Agent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.agents[o.activeID]
}

// AgentIDs returns all agent ids in creation order.
func (o *Orchestrator) AgentIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Messages returns a snapshot of the agent's message list. The entries
// are shared; only finalized fields should be read from them.
func (o *Orchestrator) Messages(id string) []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.agents[id]
	if !ok {
		return nil
	}
	out := make([]Message, len(a.Messages))
	copy(out, a.Messages)
	return out
}

// Count returns the number of agents.
func (o *Orchestrator) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.agents)
}

// SwitchTo activates the given agent and clears its unread counter.
// Unknown ids are a no-op.
func (o *Orchestrator) SwitchTo(id string) {
	o.mu.Lock()
	a, ok := o.agents[id]
	if !ok {
		o.mu.Unlock()
		return
	}
	o.activeID = id
	a.UnreadCount = 0
	o.mu.Unlock()
	o.notify()
}

// CloseAgent destroys an agent locally and remotely. Closing the last
// remaining agent is rejected.
func (o *Orchestrator) CloseAgent(id string) error {
	o.mu.Lock()
	a, ok := o.agents[id]
	if !ok {
		o.mu.Unlock()
		return core.NewInvalidRequestError(fmt.Sprintf("unknown agent %s", id))
	}
	if len(o.agents) == 1 {
		o.mu.Unlock()
		return core.NewInvalidRequestError("cannot close the last agent")
	}

	a.clearInterruptLocked()
	delete(o.agents, id)
	for i, oid := range o.order {
		if oid == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	if o.activeID == id {
		// First remaining agent in creation order.
		o.activeID = o.order[0]
		o.agents[o.activeID].UnreadCount = 0
	}
	o.mu.Unlock()

	o.sender.Send(wire.NewDestroyAgent(id))
	o.notify()
	o.logger.Debug("agent closed", "agent", id)
	return nil
}

// SendMessage submits a user turn for the agent. On send failure nothing
// is mutated and the caller may retry.
func (o *Orchestrator) SendMessage(id, text string) error {
	o.mu.Lock()
	a, ok := o.agents[id]
	if !ok {
		o.mu.Unlock()
		return core.NewInvalidRequestError(fmt.Sprintf("unknown agent %s", id))
	}
	o.mu.Unlock()

	if !o.sender.Send(wire.NewSendMessage(id, text)) {
		return core.NewSendError("channel not open")
	}

	o.mu.Lock()
	a.Messages = append(a.Messages, &UserMessage{ID: uuid.NewString(), Text: text, At: time.Now()})
	a.IsProcessing = true
	a.Status = AgentWorking
	o.mu.Unlock()
	o.notify()
	return nil
}

// Interrupt drives the two-phase stop protocol. The first call while a
// turn is in flight sends a soft interrupt and arms the grace timer; if
// the timer lapses without a completion, the next call performs a purely
// local force-stop with no further network traffic.
func (o *Orchestrator) Interrupt(id string) error {
	o.mu.Lock()
	a, ok := o.agents[id]
	if !ok {
		o.mu.Unlock()
		return core.NewInvalidRequestError(fmt.Sprintf("unknown agent %s", id))
	}
	if !a.IsProcessing {
		o.mu.Unlock()
		return nil
	}

	if a.ForceStopAvailable() {
		o.forceStopLocked(a)
		o.mu.Unlock()
		o.notify()
		return nil
	}
	if a.InterruptPending {
		// Soft interrupt already in flight; wait for the grace window.
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	if !o.sender.Send(wire.NewInterrupt(id)) {
		return core.NewSendError("channel not open")
	}

	o.mu.Lock()
	a.InterruptPending = true
	a.interruptTimer = time.AfterFunc(interruptGrace, func() {
		o.interruptGraceLapsed(id)
	})
	o.mu.Unlock()
	o.notify()
	return nil
}

// interruptGraceLapsed clears the timer handle but leaves the pending
// flag set: that combination is what the UI reads as "force-stop
// available".
func (o *Orchestrator) interruptGraceLapsed(id string) {
	o.mu.Lock()
	a, ok := o.agents[id]
	if ok && a.InterruptPending {
		a.interruptTimer = nil
	}
	o.mu.Unlock()
	if ok {
		o.notify()
	}
}

// forceStopLocked is the local hard reset: finalize any in-flight stream,
// stop processing, and append the stop note. Caller holds o.mu.
func (o *Orchestrator) forceStopLocked(a *Agent) {
	o.finalizeStreamLocked(a)
	a.clearInterruptLocked()
	a.IsProcessing = false
	a.Status = AgentIdle
	a.Messages = append(a.Messages, &SystemMessage{
		ID:   uuid.NewString(),
		Text: forceStopNote,
		At:   time.Now(),
	})
	o.logger.Debug("agent force-stopped", "agent", a.ID)
}

// RespondPermission answers a pending permission request. Approving a
// red-level request requires a PIN. On successful send the status flips
// optimistically; on send failure it stays pending so the user can retry.
func (o *Orchestrator) RespondPermission(agentID, requestID string, approved bool, pin string) error {
	o.mu.Lock()
	a, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		return core.NewInvalidRequestError(fmt.Sprintf("unknown agent %s", agentID))
	}
	p := a.findPermission(requestID)
	if p == nil {
		o.mu.Unlock()
		return core.NewInvalidRequestError(fmt.Sprintf("unknown permission request %s", requestID))
	}
	if p.Status != PermissionPending {
		o.mu.Unlock()
		return core.NewInvalidRequestError("permission request already resolved")
	}
	if approved && p.Level == wire.PermissionLevelRed && pin == "" {
		o.mu.Unlock()
		return core.NewInvalidRequestError("red-level approval requires a pin")
	}
	o.mu.Unlock()

	if !o.sender.Send(wire.NewPermissionResponse(agentID, requestID, approved, pin)) {
		return core.NewSendError("channel not open")
	}

	o.mu.Lock()
	if approved {
		p.Status = PermissionApproved
	} else {
		p.Status = PermissionDenied
	}
	o.mu.Unlock()
	o.notify()
	return nil
}

// SwitchMode requests a coding/computer-use switch. The local mode flips
// when the backend confirms with a mode_changed envelope.
func (o *Orchestrator) SwitchMode(id, mode string) error {
	if mode != ModeCoding && mode != ModeComputerUse {
		return core.NewInvalidRequestError(fmt.Sprintf("unknown mode %q", mode))
	}
	o.mu.Lock()
	_, ok := o.agents[id]
	o.mu.Unlock()
	if !ok {
		return core.NewInvalidRequestError(fmt.Sprintf("unknown agent %s", id))
	}
	if !o.sender.Send(wire.NewSetMode(id, mode)) {
		return core.NewSendError("channel not open")
	}
	return nil
}

// Shutdown cancels every agent's pending timers. The orchestrator is not
// usable afterwards.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	for _, a := range o.agents {
		a.clearInterruptLocked()
	}
	o.mu.Unlock()
}

// HandleEnvelope routes one inbound envelope into the collection.
// Envelope types the orchestrator does not own are ignored.
func (o *Orchestrator) HandleEnvelope(env wire.Inbound) {
	switch e := env.(type) {
	case wire.AssistantText:
		o.applyDelta(e.AgentID, e.Text)
	case wire.Result:
		o.applyResult(e)
	case wire.Status:
		o.applyStatus(e)
	case wire.ToolUse:
		o.appendForAgent(e.AgentID, &ToolUseMessage{
			ID: uuid.NewString(), ToolID: e.ID, Name: e.Name, Input: e.Input, At: time.Now(),
		})
	case wire.ToolResult:
		o.appendForAgent(e.AgentID, &ToolResultMessage{
			ID: uuid.NewString(), ToolID: e.ID, Content: e.Content, IsError: e.IsError, At: time.Now(),
		})
	case wire.Error:
		id := e.AgentID
		if id == "" {
			id = o.ActiveID()
		}
		o.appendForAgent(id, &SystemMessage{ID: uuid.NewString(), Text: e.Text, At: time.Now()})
	case wire.PermissionRequest:
		o.appendForAgent(e.AgentID, &PermissionRequestMessage{
			ID:        uuid.NewString(),
			RequestID: e.RequestID,
			Tool:      e.Tool,
			Input:     e.Input,
			Level:     e.Level,
			Reason:    e.Reason,
			Status:    PermissionPending,
			At:        time.Now(),
		})
	case wire.ModeChanged:
		o.applyModeChanged(e)
	case wire.ComputerScreenshot:
		o.applyScreenshot(e)
	case wire.ComputerAction:
		o.appendForAgent(e.AgentID, &ComputerActionMessage{
			ID: uuid.NewString(), Action: e.Action, Detail: e.Detail, At: time.Now(),
		})
	}
}

// applyDelta runs the streaming reconciliation: the first delta of a turn
// allocates the assistant message, later deltas grow it in place. Exactly
// one message exists per stream.
func (o *Orchestrator) applyDelta(agentID, delta string) {
	o.mu.Lock()
	a, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		return
	}
	if a.streamMessageID == "" {
		id := uuid.NewString()
		a.streamMessageID = id
		a.streamBuffer = delta
		a.Messages = append(a.Messages, &AssistantMessage{
			ID: id, Text: delta, IsStreaming: true, At: time.Now(),
		})
	} else {
		a.streamBuffer += delta
		for i := len(a.Messages) - 1; i >= 0; i-- {
			if m, ok := a.Messages[i].(*AssistantMessage); ok && m.ID == a.streamMessageID {
				m.Text = a.streamBuffer
				break
			}
		}
	}
	o.bumpUnreadLocked(a)
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) applyResult(e wire.Result) {
	o.mu.Lock()
	a, ok := o.agents[e.AgentID]
	if !ok {
		o.mu.Unlock()
		return
	}
	o.finalizeStreamLocked(a)
	a.clearInterruptLocked()
	a.IsProcessing = false
	a.Status = AgentDone
	if e.SessionID != "" {
		a.SessionID = e.SessionID
	}
	if e.CostUSD != nil {
		a.CostUSD += *e.CostUSD
	}
	if e.DurationMS != nil {
		a.LastTurnDuration = time.Duration(*e.DurationMS) * time.Millisecond
	}
	o.bumpUnreadLocked(a)
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) applyStatus(e wire.Status) {
	o.mu.Lock()
	a, ok := o.agents[e.AgentID]
	if !ok {
		o.mu.Unlock()
		return
	}
	if e.SubAgentID != "" {
		o.upsertSubAgentLocked(a, e)
	} else if s, known := agentStatusFromWire(e.Status); known {
		a.Status = s
	}
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) upsertSubAgentLocked(a *Agent, e wire.Status) {
	for i := range a.SubAgents {
		if a.SubAgents[i].ID == e.SubAgentID {
			a.SubAgents[i].Status = e.Status
			if e.SubAgentName != "" {
				a.SubAgents[i].Name = e.SubAgentName
			}
			return
		}
	}
	a.SubAgents = append(a.SubAgents, SubAgentInfo{
		ID: e.SubAgentID, Name: e.SubAgentName, Status: e.Status,
	})
}

// applyModeChanged flips the mode and resets computer-use progress. Mode
// and progress are coupled state; they reset together or not at all.
func (o *Orchestrator) applyModeChanged(e wire.ModeChanged) {
	o.mu.Lock()
	a, ok := o.agents[e.AgentID]
	if !ok {
		o.mu.Unlock()
		return
	}
	a.Mode = e.Mode
	a.ComputerIteration = 0
	a.LastScreenshotData = ""
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) applyScreenshot(e wire.ComputerScreenshot) {
	o.mu.Lock()
	a, ok := o.agents[e.AgentID]
	if !ok {
		o.mu.Unlock()
		return
	}
	a.ComputerIteration = e.Iteration
	a.LastScreenshotData = e.Data
	a.Messages = append(a.Messages, &ComputerScreenshotMessage{
		ID: uuid.NewString(), Data: e.Data, Iteration: e.Iteration, At: time.Now(),
	})
	o.bumpUnreadLocked(a)
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) appendForAgent(agentID string, msg Message) {
	o.mu.Lock()
	a, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		return
	}
	a.Messages = append(a.Messages, msg)
	o.bumpUnreadLocked(a)
	o.mu.Unlock()
	o.notify()
}

// finalizeStreamLocked closes the in-flight assistant message, if any.
// Caller holds o.mu.
func (o *Orchestrator) finalizeStreamLocked(a *Agent) {
	if a.streamMessageID == "" {
		return
	}
	for i := len(a.Messages) - 1; i >= 0; i-- {
		if m, ok := a.Messages[i].(*AssistantMessage); ok && m.ID == a.streamMessageID {
			m.IsStreaming = false
			break
		}
	}
	a.streamMessageID = ""
	a.streamBuffer = ""
}

// bumpUnreadLocked increments the unread counter unless the agent is the
// active one. Caller holds o.mu.
func (o *Orchestrator) bumpUnreadLocked(a *Agent) {
	if a.ID != o.activeID {
		a.UnreadCount++
	}
}
