package model

// History is the tree of messages belonging to a chat, stored as an arena
// keyed by message id. CurrentID is the tip of the active branch; an empty
// CurrentID means no turn has happened yet.
type History struct {
	Messages  map[string]*Message `json:"messages"`
	CurrentID string              `json:"currentId,omitempty"`
}

// NewHistory returns an empty history with an initialized arena.
func NewHistory() History {
	return History{Messages: make(map[string]*Message)}
}

// Add inserts m into the arena and links it under its parent. The parent's
// ChildrenIDs is kept consistent with the child's ParentID; a missing parent
// leaves m dangling, which the walk treats as a broken chain.
func (h *History) Add(m *Message) {
	if h.Messages == nil {
		h.Messages = make(map[string]*Message)
	}
	h.Messages[m.ID] = m
	if m.ParentID == nil {
		return
	}
	parent, ok := h.Messages[*m.ParentID]
	if !ok {
		return
	}
	for _, id := range parent.ChildrenIDs {
		if id == m.ID {
			return
		}
	}
	parent.ChildrenIDs = append(parent.ChildrenIDs, m.ID)
}

// Remove deletes the message with the given id and unlinks it from its
// parent's ChildrenIDs. Children of the removed message are left in place;
// callers removing subtrees remove leaves first.
func (h *History) Remove(id string) {
	m, ok := h.Messages[id]
	if !ok {
		return
	}
	if m.ParentID != nil {
		if parent, ok := h.Messages[*m.ParentID]; ok {
			kept := parent.ChildrenIDs[:0]
			for _, cid := range parent.ChildrenIDs {
				if cid != id {
					kept = append(kept, cid)
				}
			}
			parent.ChildrenIDs = kept
		}
	}
	delete(h.Messages, id)
}

// Thread walks from tipID back to the root via ParentID and returns the
// messages in root-to-tip order. An empty tip or a break anywhere in the
// chain yields nil; a broken tree is not an error, it just means there is
// no linear conversation yet.
func (h *History) Thread(tipID string) []*Message {
	if tipID == "" {
		return nil
	}
	var reversed []*Message
	id := tipID
	for {
		m, ok := h.Messages[id]
		if !ok {
			return nil
		}
		reversed = append(reversed, m)
		if m.ParentID == nil {
			break
		}
		id = *m.ParentID
	}
	thread := make([]*Message, len(reversed))
	for i, m := range reversed {
		thread[len(reversed)-1-i] = m
	}
	return thread
}

// WireMessages linearizes the active branch into the role/content sequence
// the completion endpoint accepts. Internal bookkeeping never crosses this
// boundary.
func (h *History) WireMessages() []WireMessage {
	thread := h.Thread(h.CurrentID)
	if len(thread) == 0 {
		return nil
	}
	wire := make([]WireMessage, len(thread))
	for i, m := range thread {
		wire[i] = WireMessage{Role: m.Role, Content: m.Content}
	}
	return wire
}
