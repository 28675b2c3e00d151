package domain

import (
	"errors"
	"strings"
)

var (
	ErrInsecureContext    = errors.New("insecure context")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrPermissionDenied   = errors.New("microphone permission denied")
	ErrDevice             = errors.New("microphone device error")
	ErrTransport          = errors.New("transport error")
	ErrTimeout            = errors.New("timed out")
)

const (
	MessageInsecureContext    = "Use HTTPS (or localhost) for microphone access."
	MessageMissingCredentials = "Missing env: VOICEDESK_CLIENT_KEY or VOICEDESK_AGENT_ID"
	MessagePermissionDenied   = "Microphone access denied. Please allow mic permissions."
	MessageUnknown            = "Unknown error"
)

// denialMarkers are substrings capture backends print when refusing
// microphone access.
var denialMarkers = []string{
	"permission denied",
	"notallowederror",
	"not allowed",
	"access denied",
}

// IsPermissionDenial reports whether err, returned from the microphone
// capture path, is or reads like a permission refusal. Errors from other
// sources must wrap ErrPermissionDenied to count.
func IsPermissionDenial(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) {
		return true
	}
	return LooksLikeDenial(err.Error())
}

// LooksLikeDenial reports whether capture output contains a known denial
// marker.
func LooksLikeDenial(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range denialMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ReportsMicDenial matches the browser-style denial an agent relays for the
// visitor's microphone: a NotAllowedError name or a "Permission denied"
// message.
func ReportsMicDenial(name, message string) bool {
	if strings.EqualFold(strings.TrimSpace(name), "NotAllowedError") {
		return true
	}
	return strings.Contains(strings.ToLower(message), "permission denied")
}

// Classify converts err into the message shown to the user. Permission
// denials and precondition failures get fixed wording; everything else
// surfaces its raw text.
func Classify(err error) SessionError {
	switch {
	case err == nil:
		return SessionError{Code: ErrorCodeTransport, Message: MessageUnknown}
	case errors.Is(err, ErrPermissionDenied):
		return SessionError{Code: ErrorCodePermissionDenied, Message: MessagePermissionDenied}
	case errors.Is(err, ErrMissingCredentials):
		return SessionError{Code: ErrorCodeMissingCredentials, Message: MessageMissingCredentials}
	case errors.Is(err, ErrInsecureContext):
		return SessionError{Code: ErrorCodeInsecureContext, Message: MessageInsecureContext}
	}

	code := ErrorCodeTransport
	switch {
	case errors.Is(err, ErrDevice):
		code = ErrorCodeDevice
	case errors.Is(err, ErrTimeout):
		code = ErrorCodeTimeout
	}

	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = MessageUnknown
	}
	return SessionError{Code: code, Message: message}
}
