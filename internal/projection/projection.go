// Package projection derives the display view from a controller snapshot.
// Nothing here is stored; every field is recomputed from the snapshot.
package projection

import "voicedesk/internal/domain"

// Avatar selects the avatar animation.
type Avatar string

const (
	AvatarSpeakingUser  Avatar = "speaking_user"
	AvatarSpeakingAgent Avatar = "speaking_agent"
	AvatarNeutral       Avatar = "neutral"
)

const DefaultAgentName = "Seema"

// Badge is the status pill shown under the avatar.
type Badge struct {
	Text  string `json:"text"`
	Class string `json:"class"`
}

// Bubble is one rendered conversation turn.
type Bubble struct {
	Role   domain.Role `json:"role"`
	Author string      `json:"author"`
	Text   string      `json:"text"`
	IsUser bool        `json:"isUser"`
}

// View is everything the presentation layer renders.
type View struct {
	Status              domain.SessionStatus `json:"status"`
	Avatar              Avatar               `json:"avatar"`
	Badge               Badge                `json:"badge"`
	ActivityLabel       string               `json:"activityLabel,omitempty"`
	CanStart            bool                 `json:"canStart"`
	CanStop             bool                 `json:"canStop"`
	StartLabel          string               `json:"startLabel"`
	StopLabel           string               `json:"stopLabel"`
	ShowStopButton      bool                 `json:"showStopButton"`
	Pulse               bool                 `json:"pulse"`
	ConversationVisible bool                 `json:"conversationVisible"`
	Placeholder         string               `json:"placeholder,omitempty"`
	Conversation        []Bubble             `json:"conversation"`
	Error               string               `json:"error,omitempty"`
}

// CanStart reports whether a start request would be accepted.
func CanStart(status domain.SessionStatus) bool {
	return status == domain.SessionStatusIdle
}

// CanStop reports whether a stop request would be accepted.
func CanStop(status domain.SessionStatus) bool {
	return status == domain.SessionStatusInCall
}

func AvatarFor(speaker domain.Speaker) Avatar {
	switch speaker {
	case domain.SpeakerUser:
		return AvatarSpeakingUser
	case domain.SpeakerAgent:
		return AvatarSpeakingAgent
	default:
		return AvatarNeutral
	}
}

func BadgeFor(status domain.SessionStatus) Badge {
	switch status {
	case domain.SessionStatusConnecting:
		return Badge{Text: "Connecting…", Class: "badge-connecting"}
	case domain.SessionStatusInCall:
		return Badge{Text: "Live", Class: "badge-live"}
	case domain.SessionStatusStopping:
		return Badge{Text: "Disconnecting…", Class: "badge-stopping"}
	default:
		return Badge{Text: "Idle", Class: "badge-idle"}
	}
}

func activityLabel(speaker domain.Speaker) string {
	switch speaker {
	case domain.SpeakerUser:
		return "Listening…"
	case domain.SpeakerAgent:
		return "Speaking…"
	default:
		return ""
	}
}

// Build projects snap into a View. agentName labels agent bubbles and falls
// back to DefaultAgentName.
func Build(snap domain.Snapshot, agentName string) View {
	if agentName == "" {
		agentName = DefaultAgentName
	}
	inCall := snap.Status == domain.SessionStatusInCall

	view := View{
		Status:              snap.Status,
		Avatar:              AvatarFor(snap.Speaker),
		Badge:               BadgeFor(snap.Status),
		ActivityLabel:       activityLabel(snap.Speaker),
		CanStart:            CanStart(snap.Status),
		CanStop:             CanStop(snap.Status),
		StartLabel:          "Let’s Get Started",
		StopLabel:           "End Chat",
		ShowStopButton:      snap.Status == domain.SessionStatusInCall || snap.Status == domain.SessionStatusStopping,
		Pulse:               inCall,
		ConversationVisible: inCall || len(snap.Conversation) > 0,
		Conversation:        make([]Bubble, 0, len(snap.Conversation)),
	}
	if snap.Status == domain.SessionStatusConnecting {
		view.StartLabel = "Connecting…"
	}
	if snap.Status == domain.SessionStatusStopping {
		view.StopLabel = "Disconnecting…"
	}
	if inCall && len(snap.Conversation) == 0 {
		view.Placeholder = "Connecting to agent..."
	}
	if snap.Error != nil {
		view.Error = snap.Error.Message
	}

	for _, turn := range snap.Conversation {
		bubble := Bubble{Role: turn.Role, Text: turn.Text, Author: agentName}
		if turn.Role == domain.RoleUser {
			bubble.Author = "You"
			bubble.IsUser = true
		}
		view.Conversation = append(view.Conversation, bubble)
	}
	return view
}
