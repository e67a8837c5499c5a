package agents

import (
	"encoding/json"
	"time"
)

// Message is the closed set of conversation entry variants. Adding a
// variant means updating every exhaustive switch over this interface.
type Message interface {
	messageType() string
	// MessageID returns the local message identifier.
	MessageID() string
}

// PermissionStatus is the lifecycle of a permission request message.
// Transitions are monotonic: pending moves to exactly one terminal state.
type PermissionStatus string

const (
	PermissionPending  PermissionStatus = "pending"
	PermissionApproved PermissionStatus = "approved"
	PermissionDenied   PermissionStatus = "denied"
	PermissionExpired  PermissionStatus = "expired"
)

// UserMessage is a user-authored turn.
type UserMessage struct {
	ID   string
	Text string
	At   time.Time
}

func (m *UserMessage) messageType() string { return "user" }
func (m *UserMessage) MessageID() string   { return m.ID }

// AssistantMessage is assistant text. While IsStreaming is true the Text
// field grows as deltas arrive; after finalize it is immutable.
type AssistantMessage struct {
	ID          string
	Text        string
	IsStreaming bool
	At          time.Time
}

func (m *AssistantMessage) messageType() string { return "assistant" }
func (m *AssistantMessage) MessageID() string   { return m.ID }

// SystemMessage is a locally or remotely produced note rendered inline.
type SystemMessage struct {
	ID   string
	Text string
	At   time.Time
}

func (m *SystemMessage) messageType() string { return "system" }
func (m *SystemMessage) MessageID() string   { return m.ID }

// ToolUseMessage records a tool invocation by the agent.
type ToolUseMessage struct {
	ID     string
	ToolID string
	Name   string
	Input  json.RawMessage
	At     time.Time
}

func (m *ToolUseMessage) messageType() string { return "tool_use" }
func (m *ToolUseMessage) MessageID() string   { return m.ID }

// ToolResultMessage records a tool outcome.
type ToolResultMessage struct {
	ID      string
	ToolID  string
	Content string
	IsError bool
	At      time.Time
}

func (m *ToolResultMessage) messageType() string { return "tool_result" }
func (m *ToolResultMessage) MessageID() string   { return m.ID }

// PermissionRequestMessage asks the user to approve a tool action. Status
// is the only mutable field.
type PermissionRequestMessage struct {
	ID        string
	RequestID string
	Tool      string
	Input     json.RawMessage
	Level     string
	Reason    string
	Status    PermissionStatus
	At        time.Time
}

func (m *PermissionRequestMessage) messageType() string { return "permission_request" }
func (m *PermissionRequestMessage) MessageID() string   { return m.ID }

// ComputerScreenshotMessage carries one computer-use screenshot.
type ComputerScreenshotMessage struct {
	ID        string
	Data      string
	Iteration int
	At        time.Time
}

func (m *ComputerScreenshotMessage) messageType() string { return "computer_screenshot" }
func (m *ComputerScreenshotMessage) MessageID() string   { return m.ID }

// ComputerActionMessage describes one computer-use action.
type ComputerActionMessage struct {
	ID     string
	Action string
	Detail string
	At     time.Time
}

func (m *ComputerActionMessage) messageType() string { return "computer_action" }
func (m *ComputerActionMessage) MessageID() string   { return m.ID }
