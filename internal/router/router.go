// Package router matches incoming messages against registered workspace
// trigger predicates and dispatches outbound text to the owning channel
// adapter.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/nanogridbot/nanogridbot/internal/rterr"
	"github.com/nanogridbot/nanogridbot/internal/store"
)

// Adapter is the channel contract the router dispatches through.
type Adapter interface {
	OwnsJID(jid string) bool
	SendMessage(ctx context.Context, jid, text string) error
}

// Match is the outcome of a successful Route call.
type Match struct {
	GroupFolder string
	GroupJID    string
}

// Router matches messages to registered groups and dispatches outbound
// text. Its compiled-pattern cache is guarded by its own mutex since it is
// populated lazily from group data that can change between routes.
type Router struct {
	store         *store.Store
	assistantName string
	adapters      []Adapter

	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

func New(st *store.Store, assistantName string, adapters []Adapter) *Router {
	return &Router{
		store:         st,
		assistantName: assistantName,
		adapters:      adapters,
		compiled:      make(map[string]*regexp.Regexp),
	}
}

// Route looks up the registered group for message.ChatJID and, if it
// requires a trigger, matches the content against the group's effective
// trigger pattern. Returns (nil, nil) for "unmatched".
func (r *Router) Route(message *store.Message) (*Match, error) {
	group, err := r.store.GetGroup(message.ChatJID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, nil
	}

	if !group.RequiresTrigger {
		return &Match{GroupFolder: group.Folder, GroupJID: group.JID}, nil
	}

	pattern := group.TriggerPattern
	if pattern == "" {
		pattern = fmt.Sprintf(`(?i)^@%s\b`, regexp.QuoteMeta(r.assistantName))
	}

	re, err := r.compile(pattern)
	if err != nil {
		slog.Warn("router: invalid trigger pattern, treating as non-match", "jid", group.JID, "pattern", pattern, "error", err)
		return nil, nil
	}

	if !re.MatchString(message.Content) {
		return nil, nil
	}
	return &Match{GroupFolder: group.Folder, GroupJID: group.JID}, nil
}

func (r *Router) compile(pattern string) (*regexp.Regexp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if re, ok := r.compiled[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	r.compiled[pattern] = re
	return re, nil
}

// SendResponse dispatches text to the first adapter that owns jid.
func (r *Router) SendResponse(ctx context.Context, jid, text string) error {
	for _, a := range r.adapters {
		if a.OwnsJID(jid) {
			return a.SendMessage(ctx, jid, text)
		}
	}
	return rterr.New(rterr.Channel, "send response", fmt.Errorf("no channel owns jid %q", jid))
}

// Broadcast sends text to every registered group whose folder is in folders,
// collecting the jids that accepted it. Failures are logged but not fatal.
func (r *Router) Broadcast(ctx context.Context, text string, folders []string) ([]string, error) {
	wanted := make(map[string]bool, len(folders))
	for _, f := range folders {
		wanted[f] = true
	}

	groups, err := r.store.ListGroups()
	if err != nil {
		return nil, err
	}

	var sent []string
	for _, g := range groups {
		if !wanted[g.Folder] {
			continue
		}
		if err := r.SendResponse(ctx, g.JID, text); err != nil {
			slog.Warn("router: broadcast failed", "jid", g.JID, "error", err)
			continue
		}
		sent = append(sent, g.JID)
	}
	return sent, nil
}
