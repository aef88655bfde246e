package domain

import "time"

// Conversation is read-only to the delivery pipeline apart from UpdatedAt,
// which moves forward whenever a message is appended.
type Conversation struct {
	ID             string    `json:"id"`
	CreatorID      string    `json:"creator_id"`
	ParticipantIDs []string  `json:"participant_ids"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) CanSend(userID string) error {
	if !c.HasParticipant(userID) {
		return ErrNotParticipant
	}
	return nil
}

// Recipients returns every participant except the sender.
func (c *Conversation) Recipients(senderID string) []string {
	out := make([]string, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		if id != senderID {
			out = append(out, id)
		}
	}
	return out
}
