package hierarchy

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/keystone-cm/filedesk/internal/constants"
	"github.com/keystone-cm/filedesk/internal/models"
)

// Reason says why a move destination is refused.
type Reason int

const (
	ReasonNoOp Reason = iota + 1
	ReasonIntoSelf
	ReasonIntoDescendant
)

func (r Reason) String() string {
	switch r {
	case ReasonNoOp:
		return "already in that folder"
	case ReasonIntoSelf:
		return "cannot move a folder into itself"
	case ReasonIntoDescendant:
		return "cannot move a folder into one of its subfolders"
	default:
		return "invalid move"
	}
}

// MoveError is returned by CheckMove for a refused destination.
type MoveError struct {
	Reason   Reason
	SourceID models.EntryID
	DestID   models.EntryID
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s to %s: %s", e.SourceID, e.DestID, e.Reason)
}

// CheckMove decides whether source may be moved under dest.
//
// h may be nil, in which case only the no-op and self checks run.
// If the ancestor chain of dest loops, a warning is logged and the move is
// allowed; the server has the final say.
func CheckMove(source models.Entry, dest models.EntryID, h *Hierarchy) error {
	if source.ParentID == dest {
		return &MoveError{Reason: ReasonNoOp, SourceID: source.ID, DestID: dest}
	}
	if !source.IsFolder() {
		return nil
	}
	if source.ID == dest {
		return &MoveError{Reason: ReasonIntoSelf, SourceID: source.ID, DestID: dest}
	}
	if h == nil {
		return nil
	}

	seen := make(map[models.EntryID]bool)
	cur := dest
	for steps := 0; !cur.IsRoot(); steps++ {
		if cur == source.ID {
			return &MoveError{Reason: ReasonIntoDescendant, SourceID: source.ID, DestID: dest}
		}
		if seen[cur] || steps >= constants.MaxHierarchyDepth {
			log.Warn().
				Str("source", source.ID.String()).
				Str("dest", dest.String()).
				Str("at", cur.String()).
				Msg("hierarchy: cycle detected")
			return nil
		}
		seen[cur] = true

		e, ok := h.Lookup(cur)
		if !ok {
			return nil
		}
		cur = e.ParentID
	}
	return nil
}

// IsMoveDisabled reports whether dest should be offered as disabled.
func IsMoveDisabled(source models.Entry, dest models.EntryID, h *Hierarchy) bool {
	return CheckMove(source, dest, h) != nil
}

// Destination is a candidate folder in a move dialog.
type Destination struct {
	Node
	Disabled bool
	Reason   Reason // zero when enabled
}

// Destinations lists the root followed by every reachable folder, each
// marked disabled when moving source there is refused.
func (h *Hierarchy) Destinations(source models.Entry) []Destination {
	out := make([]Destination, 0, len(h.nodes)+1)

	root := Destination{Node: Node{Entry: models.Entry{ID: models.RootID, Kind: models.KindFolder}, Depth: -1, Label: "/"}}
	mark(&root, source, h)
	out = append(out, root)

	for _, n := range h.nodes {
		d := Destination{Node: n}
		mark(&d, source, h)
		out = append(out, d)
	}
	return out
}

func mark(d *Destination, source models.Entry, h *Hierarchy) {
	if err := CheckMove(source, d.Entry.ID, h); err != nil {
		d.Disabled = true
		if me, ok := err.(*MoveError); ok {
			d.Reason = me.Reason
		}
	}
}
