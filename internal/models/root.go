package models

// DefaultLegacyRootIDs are parent ids older backends use for top-level entries.
var DefaultLegacyRootIDs = []EntryID{"1", "2"}

// RootShim maps legacy root parent ids onto RootID.
//
// A legacy id is only rewritten when no entry in the same listing carries
// that id, so a real folder numbered "1" keeps its children.
type RootShim struct {
	LegacyIDs []EntryID
}

// NewRootShim returns a shim for the given legacy ids, or the defaults when none are given.
func NewRootShim(legacy ...EntryID) RootShim {
	if len(legacy) == 0 {
		legacy = DefaultLegacyRootIDs
	}
	ids := make([]EntryID, 0, len(legacy))
	for _, id := range legacy {
		if id != RootID {
			ids = append(ids, id)
		}
	}
	return RootShim{LegacyIDs: ids}
}

// Normalize returns a copy of entries with legacy root parents rewritten to RootID.
// It reports how many entries were rewritten.
func (s RootShim) Normalize(entries []Entry) ([]Entry, int) {
	if len(s.LegacyIDs) == 0 || len(entries) == 0 {
		return entries, 0
	}

	present := make(map[EntryID]bool, len(entries))
	for _, e := range entries {
		present[e.ID] = true
	}

	legacy := make(map[EntryID]bool, len(s.LegacyIDs))
	for _, id := range s.LegacyIDs {
		if !present[id] {
			legacy[id] = true
		}
	}
	if len(legacy) == 0 {
		return entries, 0
	}

	out := make([]Entry, len(entries))
	rewritten := 0
	for i, e := range entries {
		if legacy[e.ParentID] {
			e.ParentID = RootID
			rewritten++
		}
		out[i] = e
	}
	return out, rewritten
}

// NormalizeID maps a single legacy id to RootID. Used for ids typed by a user,
// where there is no listing to check against.
func (s RootShim) NormalizeID(id EntryID, known func(EntryID) bool) EntryID {
	for _, legacy := range s.LegacyIDs {
		if id == legacy && (known == nil || !known(id)) {
			return RootID
		}
	}
	return id
}
