package wire

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// previewLimit bounds how much of a malformed frame is echoed back in the
// synthetic error text.
const previewLimit = 160

// DecodeInbound parses one text frame into its typed envelope. It never
// fails: malformed frames and frames that do not decode as their declared
// type come back as a synthetic Error so they flow through the same
// dispatch path as backend-reported errors. Unrecognized but well-formed
// envelopes come back as Unknown.
func DecodeInbound(data []byte) Inbound {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return syntheticError(data, err)
	}
	if head.Type == "" {
		return syntheticError(data, fmt.Errorf("missing type field"))
	}

	switch head.Type {
	case TypePing:
		return decodeAs[Ping](data)
	case TypeStatus:
		return decodeAs[Status](data)
	case TypeAssistantText:
		return decodeAs[AssistantText](data)
	case TypeToolUse:
		return decodeAs[ToolUse](data)
	case TypeToolResult:
		return decodeAs[ToolResult](data)
	case TypeResult:
		return decodeAs[Result](data)
	case TypeError:
		return decodeAs[Error](data)
	case TypePermissionRequest:
		return decodeAs[PermissionRequest](data)
	case TypeModeChanged:
		return decodeAs[ModeChanged](data)
	case TypeComputerScreenshot:
		return decodeAs[ComputerScreenshot](data)
	case TypeComputerAction:
		return decodeAs[ComputerAction](data)
	case TypeVADEvent:
		return decodeAs[VADEvent](data)
	case TypeWakeWordDetected:
		return decodeAs[WakeWordDetected](data)
	case TypeTalkStateChanged:
		return decodeAs[TalkStateChanged](data)
	case TypeVoiceTranscription:
		return decodeAs[VoiceTranscription](data)
	case TypePartialTranscription:
		return decodeAs[PartialTranscription](data)
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Unknown{Type: head.Type, Raw: raw}
	}
}

func decodeAs[T Inbound](data []byte) Inbound {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return syntheticError(data, err)
	}
	return e
}

func syntheticError(data []byte, cause error) Error {
	preview := data
	if len(preview) > previewLimit {
		// Back off so the cut never splits a multi-byte rune.
		cut := previewLimit
		for cut > 0 && cut > previewLimit-utf8.UTFMax && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}
	return Error{
		Text:      fmt.Sprintf("malformed server frame (%v): %s", cause, preview),
		Synthetic: true,
	}
}
