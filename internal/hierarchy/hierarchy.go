// Package hierarchy indexes a flat listing into a folder tree.
package hierarchy

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/keystone-cm/filedesk/internal/models"
)

// Node is one folder in depth-first order.
type Node struct {
	Entry models.Entry
	Depth int    // number of folder ancestors below the root
	Label string // the folder's own name
}

// Hierarchy is an immutable index over one listing. Build a new one after
// every fetch.
type Hierarchy struct {
	byID     map[models.EntryID]models.Entry
	children map[models.EntryID][]models.EntryID
	order    []models.EntryID
	nodes    []Node
	depth    map[models.EntryID]int
}

// New indexes entries. Parent ids must already be canonical (see
// models.RootShim); New does not special-case legacy root values.
// When an id appears twice the first occurrence wins.
func New(entries []models.Entry) *Hierarchy {
	h := &Hierarchy{
		byID:     make(map[models.EntryID]models.Entry, len(entries)),
		children: make(map[models.EntryID][]models.EntryID),
		order:    make([]models.EntryID, 0, len(entries)),
		depth:    make(map[models.EntryID]int),
	}

	for _, e := range entries {
		if e.ID.IsRoot() {
			log.Debug().Str("name", e.Name).Msg("hierarchy: entry without id ignored")
			continue
		}
		if _, dup := h.byID[e.ID]; dup {
			log.Debug().Str("id", e.ID.String()).Msg("hierarchy: duplicate id ignored")
			continue
		}
		h.byID[e.ID] = e
		h.order = append(h.order, e.ID)
		h.children[e.ParentID] = append(h.children[e.ParentID], e.ID)
	}

	h.walk()
	return h
}

// walk computes the depth-first folder order from the root. The visited set
// keeps cyclic parent pointers from looping; folders caught in a cycle are
// never reached from the root and end up in Orphans.
func (h *Hierarchy) walk() {
	type frame struct {
		id    models.EntryID
		depth int
	}

	visited := make(map[models.EntryID]bool)
	var stack []frame
	push := func(parent models.EntryID, depth int) {
		kids := h.children[parent]
		// reverse so the first child is popped first
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: kids[i], depth: depth})
		}
	}

	push(models.RootID, 0)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[f.id] {
			continue
		}
		visited[f.id] = true

		e := h.byID[f.id]
		h.depth[f.id] = f.depth
		if !e.IsFolder() {
			continue
		}
		h.nodes = append(h.nodes, Node{Entry: e, Depth: f.depth, Label: e.Name})
		push(f.id, f.depth+1)
	}
}

// Flatten returns every folder reachable from the root, parent before
// children, siblings in listing order.
func (h *Hierarchy) Flatten() []Node {
	out := make([]Node, len(h.nodes))
	copy(out, h.nodes)
	return out
}

// Orphans returns folders that cannot be reached from the root, either
// because a parent is missing or because their parents form a cycle.
func (h *Hierarchy) Orphans() []models.Entry {
	var out []models.Entry
	for _, id := range h.order {
		e := h.byID[id]
		if !e.IsFolder() {
			continue
		}
		if _, ok := h.depth[id]; !ok {
			out = append(out, e)
		}
	}
	return out
}

// Lookup returns the entry with the given id.
func (h *Hierarchy) Lookup(id models.EntryID) (models.Entry, bool) {
	e, ok := h.byID[id]
	return e, ok
}

// Children returns the direct children of id in listing order.
func (h *Hierarchy) Children(id models.EntryID) []models.Entry {
	ids := h.children[id]
	out := make([]models.Entry, 0, len(ids))
	for _, cid := range ids {
		out = append(out, h.byID[cid])
	}
	return out
}

// Depth returns the number of folder ancestors of id. The second result is
// false for unknown or unreachable ids. The root itself has depth -1.
func (h *Hierarchy) Depth(id models.EntryID) (int, bool) {
	if id.IsRoot() {
		return -1, true
	}
	d, ok := h.depth[id]
	return d, ok
}

// Path returns "/a/b/c" for a reachable entry and "/" for the root.
func (h *Hierarchy) Path(id models.EntryID) (string, bool) {
	if id.IsRoot() {
		return "/", true
	}
	if _, ok := h.depth[id]; !ok {
		return "", false
	}

	var parts []string
	for cur := id; !cur.IsRoot(); {
		e := h.byID[cur]
		parts = append(parts, e.Name)
		cur = e.ParentID
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/"), true
}

// Len returns the number of indexed entries.
func (h *Hierarchy) Len() int {
	return len(h.order)
}
