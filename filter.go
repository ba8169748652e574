package chatsync

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Filter selects a category of conversations.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterStarred   Filter = "starred"
	FilterMuted     Filter = "muted"
	FilterArchived  Filter = "archived"
	FilterGroups    Filter = "groups"
	FilterCompanies Filter = "companies"
)

// Filters lists every category in display order.
var Filters = []Filter{FilterAll, FilterStarred, FilterMuted, FilterArchived, FilterGroups, FilterCompanies}

var ErrUnknownFilter = errors.New("unknown filter")

// ParseFilter validates a filter name. The empty string is FilterAll.
func ParseFilter(s string) (Filter, error) {
	if s == "" {
		return FilterAll, nil
	}
	for _, f := range Filters {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownFilter, s)
}

func (f Filter) match(c *Conversation) bool {
	switch f {
	case FilterStarred:
		return c.IsPinned
	case FilterMuted:
		return c.IsMuted
	case FilterArchived:
		return c.IsArchived
	case FilterGroups:
		return c.Type == ConversationGroup
	case FilterCompanies:
		return c.Type == ConversationCompany
	default:
		return !c.IsArchived
	}
}

func matchSearch(c *Conversation, term string) bool {
	if strings.Contains(strings.ToLower(c.DisplayName()), term) {
		return true
	}
	return c.LastMessage != nil && strings.Contains(strings.ToLower(c.LastMessage.Content), term)
}

// VisibleConversations returns the conversations matching filter and search,
// pinned first and then most recent activity first. The input is not
// modified; conversations that compare equal keep their input order.
func VisibleConversations(all []Conversation, filter Filter, search string) []Conversation {
	term := strings.ToLower(strings.TrimSpace(search))
	out := make([]Conversation, 0, len(all))
	for i := range all {
		c := &all[i]
		if !filter.match(c) {
			continue
		}
		if term != "" && !matchSearch(c, term) {
			continue
		}
		out = append(out, c.Clone())
	}
	SortConversations(out)
	return out
}

// SortConversations orders convs in place: pinned before unpinned, then by
// descending last message timestamp, conversations without a last message
// last within their group. The sort is stable.
func SortConversations(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := &convs[i], &convs[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		switch {
		case a.LastMessage == nil:
			return false
		case b.LastMessage == nil:
			return true
		}
		return a.LastMessage.Timestamp.After(b.LastMessage.Timestamp)
	})
}
