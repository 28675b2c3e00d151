package agentws

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"voicedesk/internal/domain"
)

const (
	frameStart       = "start"
	frameStop        = "stop"
	frameSpeechStart = "speech-start"
	frameSpeechStop  = "speech-stop"
	frameCallStart   = "call-start"
	frameCallEnd     = "call-end"
	frameError       = "error"
	frameMessage     = "message"

	messageTranscript = "transcript"
)

var errUnknownFrame = errors.New("unknown frame")

type startFrame struct {
	Type    string `json:"type"`
	AgentID string `json:"agentId"`
}

type stopFrame struct {
	Type string `json:"type"`
}

type inboundFrame struct {
	Type    string          `json:"type"`
	Speaker string          `json:"speaker"`
	Message json.RawMessage `json:"message"`
}

type agentMessage struct {
	Type           string `json:"type"`
	Role           string `json:"role"`
	Transcript     string `json:"transcript"`
	TranscriptType string `json:"transcriptType"`
}

func encodeStart(agentID string) ([]byte, error) {
	return json.Marshal(startFrame{Type: frameStart, AgentID: agentID})
}

func encodeStop() ([]byte, error) {
	return json.Marshal(stopFrame{Type: frameStop})
}

// decodeFrame maps one text frame to a transport event. ok is false for
// frames that carry nothing the controller consumes.
func decodeFrame(payload []byte) (event domain.TransportEvent, ok bool, err error) {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return domain.TransportEvent{}, false, fmt.Errorf("decode frame: %w", err)
	}

	switch frame.Type {
	case frameSpeechStart:
		return domain.TransportEvent{Kind: domain.EventSpeechStart, Speaker: domain.ParseSpeaker(frame.Speaker)}, true, nil
	case frameSpeechStop:
		return domain.TransportEvent{Kind: domain.EventSpeechStop}, true, nil
	case frameCallStart:
		return domain.TransportEvent{Kind: domain.EventCallStart}, true, nil
	case frameCallEnd:
		return domain.TransportEvent{Kind: domain.EventCallEnd}, true, nil
	case frameError:
		return domain.TransportEvent{Kind: domain.EventError, Err: errorFromMessage(frame.Message)}, true, nil
	case frameMessage:
		return decodeMessage(frame.Message)
	default:
		return domain.TransportEvent{}, false, fmt.Errorf("%w: %q", errUnknownFrame, frame.Type)
	}
}

func decodeMessage(raw json.RawMessage) (domain.TransportEvent, bool, error) {
	var msg agentMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.TransportEvent{}, false, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type != messageTranscript || msg.Transcript == "" {
		return domain.TransportEvent{}, false, nil
	}
	role, ok := domain.ParseRole(msg.Role)
	if !ok {
		return domain.TransportEvent{}, false, fmt.Errorf("unknown transcript role %q", msg.Role)
	}
	return domain.TransportEvent{Kind: domain.EventTranscript, Role: role, Text: msg.Transcript}, true, nil
}

// errorFromMessage accepts either a bare string or an object with a message
// field.
func errorFromMessage(raw json.RawMessage) error {
	var text, name string
	if err := json.Unmarshal(raw, &text); err != nil {
		var nested struct {
			Message string `json:"message"`
			Name    string `json:"name"`
		}
		if json.Unmarshal(raw, &nested) == nil {
			text = nested.Message
			name = nested.Name
		}
	}
	text = strings.TrimSpace(text)
	if name != "" && domain.ReportsMicDenial(name, "") {
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, text)
	}
	if text == "" {
		return fmt.Errorf("%w: agent returned an unknown error", domain.ErrTransport)
	}
	if domain.ReportsMicDenial("", text) {
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, text)
	}
	return errors.New(text)
}
