package router

import "strings"

// PresenceChannel carries ONLINE/OFFLINE broadcasts to every connected client.
const PresenceChannel = "user.status"

func ConversationChannel(conversationID string) string {
	return "conversation." + conversationID
}

func StatusChannel(conversationID string) string {
	return "conversation." + conversationID + ".status"
}

func TypingChannel(conversationID string) string {
	return "conversation." + conversationID + ".typing"
}

func UserMessagesChannel(userID string) string {
	return "user." + userID + ".messages"
}

func UserSyncChannel(userID string) string {
	return "user." + userID + ".sync"
}

type TargetKind int

const (
	TargetConversation TargetKind = iota + 1
	TargetUser
	TargetBroadcast
)

// Target says who a live channel is addressed to.
type Target struct {
	Kind TargetKind
	ID   string
}

func ParseChannel(channel string) (Target, bool) {
	if channel == PresenceChannel {
		return Target{Kind: TargetBroadcast}, true
	}

	if rest, ok := strings.CutPrefix(channel, "conversation."); ok {
		for _, suffix := range []string{".status", ".typing"} {
			if id, ok := strings.CutSuffix(rest, suffix); ok {
				rest = id
				break
			}
		}
		if rest == "" || strings.Contains(rest, ".") {
			return Target{}, false
		}
		return Target{Kind: TargetConversation, ID: rest}, true
	}

	if rest, ok := strings.CutPrefix(channel, "user."); ok {
		for _, suffix := range []string{".messages", ".sync"} {
			if id, ok := strings.CutSuffix(rest, suffix); ok && id != "" && !strings.Contains(id, ".") {
				return Target{Kind: TargetUser, ID: id}, true
			}
		}
	}

	return Target{}, false
}
