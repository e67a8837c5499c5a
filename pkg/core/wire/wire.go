// Package wire defines the JSON envelopes exchanged with the backend over
// the realtime channel. Every envelope is a flat JSON object with a "type"
// discriminator.
package wire

import "encoding/json"

// Envelope type discriminators, outbound.
const (
	TypeAuth               = "auth"
	TypeSendMessage        = "send_message"
	TypeInterrupt          = "interrupt"
	TypeDestroyAgent       = "destroy_agent"
	TypeSetMode            = "set_mode"
	TypePermissionResponse = "permission_response"
	TypeAudioChunk         = "audio_chunk"
	TypeVoiceModeSet       = "voice_mode_set"
	TypeTalkModeStart      = "talk_mode_start"
	TypeTalkModeStop       = "talk_mode_stop"
	TypeTalkInterruption   = "talk_interruption"
	TypeHeartbeat          = "heartbeat"
	TypePong               = "pong"
)

// Envelope type discriminators, inbound.
const (
	TypePing                 = "ping"
	TypeStatus               = "status"
	TypeAssistantText        = "assistant_text"
	TypeToolUse              = "tool_use"
	TypeToolResult           = "tool_result"
	TypeResult               = "result"
	TypeError                = "error"
	TypePermissionRequest    = "permission_request"
	TypeModeChanged          = "mode_changed"
	TypeComputerScreenshot   = "computer_screenshot"
	TypeComputerAction       = "computer_action"
	TypeVADEvent             = "vad_event"
	TypeWakeWordDetected     = "wake_word_detected"
	TypeTalkStateChanged     = "talk_state_changed"
	TypeVoiceTranscription   = "voice_transcription"
	TypePartialTranscription = "partial_transcription"
)

// Outbound is implemented by every envelope the client writes to the channel.
type Outbound interface {
	OutboundType() string
}

// Inbound is implemented by every envelope the client reads from the channel.
type Inbound interface {
	InboundType() string
}

// Auth is the first envelope written after the transport handshake.
type Auth struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

func NewAuth(token string) Auth { return Auth{Type: TypeAuth, Token: token} }
func (e Auth) OutboundType() string { return TypeAuth }

// SendMessage submits a user turn for an agent.
type SendMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	AgentID string `json:"agent_id"`
}

func NewSendMessage(agentID, text string) SendMessage {
	return SendMessage{Type: TypeSendMessage, Text: text, AgentID: agentID}
}
func (e SendMessage) OutboundType() string { return TypeSendMessage }

// Interrupt requests a cooperative stop of the agent's in-flight turn.
type Interrupt struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id"`
}

func NewInterrupt(agentID string) Interrupt { return Interrupt{Type: TypeInterrupt, AgentID: agentID} }
func (e Interrupt) OutboundType() string { return TypeInterrupt }

// DestroyAgent tears down the remote counterpart of a closed agent.
type DestroyAgent struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id"`
}

func NewDestroyAgent(agentID string) DestroyAgent {
	return DestroyAgent{Type: TypeDestroyAgent, AgentID: agentID}
}
func (e DestroyAgent) OutboundType() string { return TypeDestroyAgent }

// SetMode switches an agent between coding and computer-use.
type SetMode struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id"`
	Mode    string `json:"mode"`
}

func NewSetMode(agentID, mode string) SetMode {
	return SetMode{Type: TypeSetMode, AgentID: agentID, Mode: mode}
}
func (e SetMode) OutboundType() string { return TypeSetMode }

// PermissionResponse answers a pending permission request. PIN is required
// by the backend when the request level is "red".
type PermissionResponse struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	AgentID   string `json:"agent_id"`
	Approved  bool   `json:"approved"`
	PIN       string `json:"pin,omitempty"`
}

func NewPermissionResponse(agentID, requestID string, approved bool, pin string) PermissionResponse {
	return PermissionResponse{
		Type:      TypePermissionResponse,
		RequestID: requestID,
		AgentID:   agentID,
		Approved:  approved,
		PIN:       pin,
	}
}
func (e PermissionResponse) OutboundType() string { return TypePermissionResponse }

// AudioChunk carries one base64-encoded PCM capture chunk.
type AudioChunk struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id"`
	Data    string `json:"data"`
}

func NewAudioChunk(agentID, dataB64 string) AudioChunk {
	return AudioChunk{Type: TypeAudioChunk, AgentID: agentID, Data: dataB64}
}
func (e AudioChunk) OutboundType() string { return TypeAudioChunk }

// VoiceModeSet configures the backend voice pipeline for a call.
type VoiceModeSet struct {
	Type             string  `json:"type"`
	Mode             string  `json:"mode"`
	AgentID          string  `json:"agent_id"`
	VADThreshold     float64 `json:"vad_threshold"`
	SilenceTimeoutMS int     `json:"silence_timeout"`
}

func (e VoiceModeSet) OutboundType() string { return TypeVoiceModeSet }

// TalkModeStart begins a continuous hands-free voice call.
type TalkModeStart struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id"`
}

func NewTalkModeStart(agentID string) TalkModeStart {
	return TalkModeStart{Type: TypeTalkModeStart, AgentID: agentID}
}
func (e TalkModeStart) OutboundType() string { return TypeTalkModeStart }

// TalkModeStop ends a voice call.
type TalkModeStop struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id"`
}

func NewTalkModeStop(agentID string) TalkModeStop {
	return TalkModeStop{Type: TypeTalkModeStop, AgentID: agentID}
}
func (e TalkModeStop) OutboundType() string { return TypeTalkModeStop }

// TalkInterruption informs the backend that assistant speech was cut off by
// the user before playback finished.
type TalkInterruption struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id"`
}

func NewTalkInterruption(agentID string) TalkInterruption {
	return TalkInterruption{Type: TypeTalkInterruption, AgentID: agentID}
}
func (e TalkInterruption) OutboundType() string { return TypeTalkInterruption }

// Heartbeat is the periodic keep-alive envelope.
type Heartbeat struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

func NewHeartbeat(ts int64) Heartbeat { return Heartbeat{Type: TypeHeartbeat, TS: ts} }
func (e Heartbeat) OutboundType() string { return TypeHeartbeat }

// Pong answers an inbound ping.
type Pong struct {
	Type string `json:"type"`
}

func NewPong() Pong { return Pong{Type: TypePong} }
func (e Pong) OutboundType() string { return TypePong }

// Ping is a server liveness probe; it is answered immediately with a Pong,
// bypassing normal dispatch.
type Ping struct {
	TS int64 `json:"ts"`
}

func (e Ping) InboundType() string { return TypePing }

// Status reports an agent's processing status. When the sub-agent fields
// are present it describes one of the agent's delegated workers instead.
type Status struct {
	AgentID      string `json:"agent_id"`
	Status       string `json:"status"`
	SubAgentID   string `json:"sub_agent_id,omitempty"`
	SubAgentName string `json:"sub_agent_name,omitempty"`
}

func (e Status) InboundType() string { return TypeStatus }

// AssistantText is one incremental fragment of streamed assistant text.
type AssistantText struct {
	Text    string `json:"text"`
	AgentID string `json:"agent_id"`
}

func (e AssistantText) InboundType() string { return TypeAssistantText }

// ToolUse reports a tool invocation by the agent.
type ToolUse struct {
	AgentID string          `json:"agent_id"`
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input,omitempty"`
}

func (e ToolUse) InboundType() string { return TypeToolUse }

// ToolResult reports the outcome of a tool invocation.
type ToolResult struct {
	AgentID string `json:"agent_id"`
	ID      string `json:"id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

func (e ToolResult) InboundType() string { return TypeToolResult }

// Result marks the completion of an agent turn.
type Result struct {
	AgentID    string   `json:"agent_id"`
	CostUSD    *float64 `json:"cost,omitempty"`
	DurationMS *int64   `json:"duration_ms,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
}

func (e Result) InboundType() string { return TypeResult }

// Error carries a backend-reported or locally synthesized diagnostic.
// Synthetic is set for errors the client manufactured from malformed frames.
type Error struct {
	AgentID   string `json:"agent_id,omitempty"`
	Text      string `json:"text"`
	Synthetic bool   `json:"-"`
}

func (e Error) InboundType() string { return TypeError }

// Permission levels for PermissionRequest.
const (
	PermissionLevelYellow   = "yellow"
	PermissionLevelRed      = "red"
	PermissionLevelComputer = "computer"
)

// PermissionRequest asks the user to approve a sensitive tool action.
type PermissionRequest struct {
	RequestID string          `json:"request_id"`
	AgentID   string          `json:"agent_id"`
	Tool      string          `json:"tool"`
	Input     json.RawMessage `json:"input,omitempty"`
	Level     string          `json:"level"`
	Reason    string          `json:"reason,omitempty"`
}

func (e PermissionRequest) InboundType() string { return TypePermissionRequest }

// ModeChanged confirms a server-side agent mode switch.
type ModeChanged struct {
	AgentID string `json:"agent_id"`
	Mode    string `json:"mode"`
}

func (e ModeChanged) InboundType() string { return TypeModeChanged }

// ComputerScreenshot carries a computer-use screenshot frame.
type ComputerScreenshot struct {
	AgentID   string `json:"agent_id"`
	Data      string `json:"data"`
	Iteration int    `json:"iteration,omitempty"`
}

func (e ComputerScreenshot) InboundType() string { return TypeComputerScreenshot }

// ComputerAction describes a computer-use action the agent performed.
type ComputerAction struct {
	AgentID string `json:"agent_id"`
	Action  string `json:"action"`
	Detail  string `json:"detail,omitempty"`
}

func (e ComputerAction) InboundType() string { return TypeComputerAction }

// VAD event names.
const (
	VADSpeechStart = "speech_start"
	VADSpeechEnd   = "speech_end"
	VADNoSpeech    = "no_speech"
)

// VADEvent reports a voice-activity boundary detected by the backend.
type VADEvent struct {
	Event string `json:"event"`
}

func (e VADEvent) InboundType() string { return TypeVADEvent }

// WakeWordDetected reports a wake-word hit during wake listening.
type WakeWordDetected struct {
	Confidence float64 `json:"confidence"`
}

func (e WakeWordDetected) InboundType() string { return TypeWakeWordDetected }

// TalkStateChanged asserts a voice state from the server.
type TalkStateChanged struct {
	State string `json:"state"`
}

func (e TalkStateChanged) InboundType() string { return TypeTalkStateChanged }

// VoiceTranscription carries a (possibly final) transcription of user speech.
type VoiceTranscription struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

func (e VoiceTranscription) InboundType() string { return TypeVoiceTranscription }

// PartialTranscription carries a low-latency partial transcript.
type PartialTranscription struct {
	Text string `json:"text"`
}

func (e PartialTranscription) InboundType() string { return TypePartialTranscription }

// Unknown preserves a well-formed envelope with an unrecognized type.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (e Unknown) InboundType() string { return e.Type }
