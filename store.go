package chatsync

import (
	"reflect"
	"sort"
	"sync"
)

// Draft is the composer state: input text and the message being replied to.
type Draft struct {
	Text    string
	ReplyTo string
}

// overlay is a local conversation patch. It survives refreshes that started
// before it was made, and any refresh while its remote call is unsettled.
type overlay struct {
	seq        uint64
	settled    bool
	zeroUnread bool
	patch      ConversationPatch
}

func (o overlay) apply(c *Conversation) {
	if o.zeroUnread {
		c.UnreadCount = 0
	}
	o.patch.apply(c)
}

// Store is the in-memory mirror of conversations and message lists. Readers
// get copies; all mutation goes through the Engine.
type Store struct {
	mu            sync.RWMutex
	conversations []Conversation
	messages      map[string][]Message
	activeID      string
	draft         Draft

	seq          uint64
	overlays     map[string][]overlay
	refreshStart uint64

	// confirmSeq counts send confirmations. confirmed maps the server id of
	// each confirmation to its count while message fetches are in flight.
	confirmSeq uint64
	confirmed  map[string]uint64
	fetching   int
}

func NewStore() *Store {
	return &Store{
		messages:  make(map[string][]Message),
		overlays:  make(map[string][]overlay),
		confirmed: make(map[string]uint64),
	}
}

// ── Reads ────────────────────────────────────────────────

// Conversations returns the collection in fetch order.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, len(s.conversations))
	for i := range s.conversations {
		out[i] = s.conversations[i].Clone()
	}
	return out
}

func (s *Store) Conversation(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.conversations[i].Clone(), true
	}
	return Conversation{}, false
}

// Messages returns a conversation's message list, oldest first.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.messages[conversationID]
	out := make([]Message, len(list))
	for i := range list {
		out[i] = list[i].Clone()
	}
	return out
}

// Message looks a message up by id across all loaded lists.
func (s *Store) Message(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conv, i := s.locate(id); i >= 0 {
		return s.messages[conv][i].Clone(), true
	}
	return Message{}, false
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

func (s *Store) Draft() Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft
}

func (s *Store) indexOf(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) locate(messageID string) (string, int) {
	for conv, list := range s.messages {
		for i := range list {
			if list[i].ID == messageID {
				return conv, i
			}
		}
	}
	return "", -1
}

// ── Conversations ────────────────────────────────────────

// beginRefresh marks the start of a list fetch.
func (s *Store) beginRefresh() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// applyRefresh replaces the collection with a fetched list started at start.
// Overlays recorded after start are re-applied; older ones are dropped. A
// result older than the last applied one is discarded as stale.
func (s *Store) applyRefresh(start uint64, fetched []Conversation) (changed, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if start < s.refreshStart {
		return false, true
	}
	s.refreshStart = start

	next := make([]Conversation, len(fetched))
	for i := range fetched {
		next[i] = fetched[i].Clone()
	}
	for id, list := range s.overlays {
		kept := list[:0]
		for _, o := range list {
			if o.seq > start || !o.settled {
				kept = append(kept, o)
			}
		}
		if len(kept) == 0 {
			delete(s.overlays, id)
			continue
		}
		s.overlays[id] = kept
	}
	for i := range next {
		for _, o := range s.overlays[next[i].ID] {
			o.apply(&next[i])
		}
	}

	if reflect.DeepEqual(next, s.conversations) {
		return false, false
	}
	s.conversations = next
	return true, false
}

// patchConversation records an unsettled overlay for id and applies it to
// the conversation if present, so a refresh already in flight picks it up
// either way. It returns the conversation as it was before, the overlay seq
// and whether the conversation was present.
func (s *Store) patchConversation(id string, o overlay) (Conversation, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	o.seq = s.seq
	o.settled = false
	s.overlays[id] = append(s.overlays[id], o)
	i := s.indexOf(id)
	if i < 0 {
		return Conversation{}, o.seq, false
	}
	prev := s.conversations[i].Clone()
	o.apply(&s.conversations[i])
	return prev, o.seq, true
}

// settleOverlay marks the remote call behind an overlay as resolved.
func (s *Store) settleOverlay(id string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.overlays[id]
	for i := range list {
		if list[i].seq == seq {
			list[i].settled = true
		}
	}
}

// restoreFlags puts back the flags patch touched and drops overlay seq.
func (s *Store) restoreFlags(prev Conversation, patch ConversationPatch, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(prev.ID); i >= 0 {
		c := &s.conversations[i]
		if patch.IsMuted != nil {
			c.IsMuted = prev.IsMuted
		}
		if patch.IsArchived != nil {
			c.IsArchived = prev.IsArchived
		}
		if patch.IsPinned != nil {
			c.IsPinned = prev.IsPinned
		}
	}
	list := s.overlays[prev.ID]
	kept := list[:0]
	for _, o := range list {
		if o.seq == seq {
			continue
		}
		kept = append(kept, o)
	}
	if len(kept) == 0 {
		delete(s.overlays, prev.ID)
	} else {
		s.overlays[prev.ID] = kept
	}
}

// insertConversation adds c unless a conversation with its id exists.
func (s *Store) insertConversation(c Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(c.ID) >= 0 {
		return false
	}
	s.conversations = append(s.conversations, c.Clone())
	return true
}

// removeConversation drops a conversation with its messages and overlays.
func (s *Store) removeConversation(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Conversation{}, false
	}
	removed := s.conversations[i]
	s.conversations = append(s.conversations[:i:i], s.conversations[i+1:]...)
	delete(s.messages, id)
	delete(s.overlays, id)
	if s.activeID == id {
		s.activeID = ""
	}
	return removed, true
}

func (s *Store) setActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == id {
		return false
	}
	s.activeID = id
	return true
}

// ── Messages ─────────────────────────────────────────────

// insertSorted places m after every message with a timestamp not later than
// its own.
func insertSorted(list []Message, m Message) []Message {
	i := sort.Search(len(list), func(i int) bool { return list[i].Timestamp.After(m.Timestamp) })
	list = append(list, Message{})
	copy(list[i+1:], list[i:])
	list[i] = m
	return list
}

func sortMessages(list []Message) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
}

func (s *Store) appendMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ConversationID] = insertSorted(s.messages[m.ConversationID], m.Clone())
}

// confirmMessage swaps the optimistic entry tempID for the server message.
// If the server message is already listed the optimistic entry is dropped.
// Reactions placed on the optimistic entry carry over.
func (s *Store) confirmMessage(tempID string, server Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmSeq++
	if s.fetching > 0 {
		s.confirmed[server.ID] = s.confirmSeq
	}
	conv := server.ConversationID
	list, loaded := s.messages[conv]
	tempIdx, serverIdx := -1, -1
	for i := range list {
		switch list[i].ID {
		case tempID:
			tempIdx = i
		case server.ID:
			serverIdx = i
		}
	}

	switch {
	case tempIdx >= 0 && serverIdx >= 0:
		list = append(list[:tempIdx:tempIdx], list[tempIdx+1:]...)
	case tempIdx >= 0:
		local := list[tempIdx].Reactions
		list[tempIdx] = server.Clone()
		list[tempIdx].Reactions = mergeReactions(list[tempIdx].Reactions, local)
		sortMessages(list)
	case serverIdx < 0 && loaded:
		list = insertSorted(list, server.Clone())
	default:
		return
	}
	s.messages[conv] = list
}

// mergeReactions adds the local reactions of users the server has none for.
func mergeReactions(server, local []Reaction) []Reaction {
	has := make(map[string]bool, len(server))
	for _, r := range server {
		has[r.UserID] = true
	}
	for _, r := range local {
		if !has[r.UserID] {
			has[r.UserID] = true
			server = append(server, r)
		}
	}
	return server
}

// removeMessage drops a message by id from conversationID's list.
func (s *Store) removeMessage(conversationID, id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[conversationID]
	for i := range list {
		if list[i].ID == id {
			removed := list[i]
			s.messages[conversationID] = append(list[:i:i], list[i+1:]...)
			return removed, true
		}
	}
	return Message{}, false
}

// beginMessageFetch marks the start of a message list fetch and returns
// the confirmation count it must be compared against.
func (s *Store) beginMessageFetch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetching++
	return s.confirmSeq
}

// endMessageFetch balances beginMessageFetch. The confirmation log is
// cleared once no fetch is in flight.
func (s *Store) endMessageFetch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetching > 0 {
		s.fetching--
	}
	if s.fetching == 0 && len(s.confirmed) > 0 {
		s.confirmed = make(map[string]uint64)
	}
}

// replaceMessages installs a fetched list for a conversation started when
// the confirmation count was since. It keeps:
//   - optimistic entries whose temp ids are in keep, unless the fetch
//     already carries their server copy (see matchServerCopy);
//   - messages confirmed after since that the fetch does not carry.
func (s *Store) replaceMessages(conversationID string, fetched []Message, keep map[string]bool, since uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.messages[conversationID]
	known := make(map[string]bool, len(current))
	for _, m := range current {
		known[m.ID] = true
	}

	next := make([]Message, 0, len(fetched))
	inFetch := make(map[string]bool, len(fetched))
	for i := range fetched {
		m := fetched[i].Clone()
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		inFetch[m.ID] = true
		next = append(next, m)
	}
	sortMessages(next)

	claimed := make(map[string]bool)
	for _, m := range current {
		switch {
		case keep[m.ID]:
			if i := matchServerCopy(next, m, known, claimed); i >= 0 {
				claimed[next[i].ID] = true
				next[i].Reactions = mergeReactions(next[i].Reactions, m.Reactions)
				continue
			}
			next = insertSorted(next, m)
		case !inFetch[m.ID] && s.confirmed[m.ID] > since:
			next = insertSorted(next, m)
		}
	}
	s.messages[conversationID] = next
}

// matchServerCopy finds the server copy of a pending local message in a
// fetched list: a message not shown before, from the same sender, with the
// same content and a timestamp not earlier than the local one.
func matchServerCopy(fetched []Message, local Message, known, claimed map[string]bool) int {
	for i := range fetched {
		f := &fetched[i]
		if known[f.ID] || claimed[f.ID] || IsTempID(f.ID) {
			continue
		}
		if f.SenderID == local.SenderID && f.Content == local.Content && !f.Timestamp.Before(local.Timestamp) {
			return i
		}
	}
	return -1
}

// toggleReaction applies a reaction toggle to the message wherever it is.
func (s *Store) toggleReaction(messageID, userID, emoji string) (string, ReactionAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, i := s.locate(messageID)
	if i < 0 {
		return "", "", false
	}
	m := &s.messages[conv][i]
	var action ReactionAction
	m.Reactions, action = ToggleReactions(m.Reactions, userID, emoji)
	return conv, action, true
}

// ── Draft ────────────────────────────────────────────────

func (s *Store) setDraft(d Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = d
}

// takeDraft returns the draft and clears it.
func (s *Store) takeDraft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	s.draft = Draft{}
	return d
}

// restoreText puts text back into an empty input; text typed since is kept.
func (s *Store) restoreText(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft.Text != "" {
		return false
	}
	s.draft.Text = text
	return true
}
