package chatsync

// ReactionAction describes what a toggle did.
type ReactionAction string

const (
	ReactionAdded    ReactionAction = "added"
	ReactionRemoved  ReactionAction = "removed"
	ReactionReplaced ReactionAction = "replaced"
)

// ToggleReactions applies one user's toggle to a reaction set and returns the
// new set. A user holds at most one reaction: the same emoji toggles it off,
// a different emoji replaces it. Stray duplicates for the user are dropped.
// The input slice is not modified.
func ToggleReactions(reactions []Reaction, userID, emoji string) ([]Reaction, ReactionAction) {
	out := make([]Reaction, 0, len(reactions)+1)
	had := false
	same := false
	for _, r := range reactions {
		if r.UserID == userID {
			had = true
			if r.Emoji == emoji {
				same = true
			}
			continue
		}
		out = append(out, r)
	}
	switch {
	case same:
		return out, ReactionRemoved
	case had:
		return append(out, Reaction{UserID: userID, Emoji: emoji}), ReactionReplaced
	default:
		return append(out, Reaction{UserID: userID, Emoji: emoji}), ReactionAdded
	}
}

// ReactionGroup aggregates reactions by emoji for display.
type ReactionGroup struct {
	Emoji string
	Count int
	Mine  bool
}

// GroupReactions counts reactions per emoji in order of first appearance.
// Mine is set when currentUserID reacted with that emoji.
func GroupReactions(reactions []Reaction, currentUserID string) []ReactionGroup {
	var groups []ReactionGroup
	index := make(map[string]int)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].Count++
		if r.UserID == currentUserID {
			groups[i].Mine = true
		}
	}
	return groups
}

// ToggleReaction toggles userID's emoji on a loaded message. The change is
// local only. It returns false when the message is not loaded.
func (e *Engine) ToggleReaction(messageID, emoji, userID string) bool {
	conv, action, ok := e.store.toggleReaction(messageID, userID, emoji)
	if !ok {
		return false
	}
	e.metrics.ReactionToggles.WithLabelValues(string(action)).Inc()
	e.emit(EventMessagesChanged, conv)
	return true
}

// ReactionGroups returns the grouped reactions of a loaded message as seen by
// the engine's user.
func (e *Engine) ReactionGroups(messageID string) []ReactionGroup {
	m, ok := e.store.Message(messageID)
	if !ok {
		return nil
	}
	return GroupReactions(m.Reactions, e.userID)
}
