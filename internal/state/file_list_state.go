package state

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/keystone-cm/filedesk/internal/events"
	"github.com/keystone-cm/filedesk/internal/models"
)

// OperationKind names the action currently running on an item.
type OperationKind uint8

const (
	OpNone OperationKind = iota
	OpDeleting
	OpRenaming
	OpMoving
	OpDownloading
	OpStarring
)

func (k OperationKind) String() string {
	switch k {
	case OpNone:
		return "idle"
	case OpDeleting:
		return "deleting"
	case OpRenaming:
		return "renaming"
	case OpMoving:
		return "moving"
	case OpDownloading:
		return "downloading"
	case OpStarring:
		return "starring"
	default:
		return fmt.Sprintf("operation(%d)", uint8(k))
	}
}

// OperationState is the per-item busy marker. The zero value is idle.
// An item runs at most one operation at a time.
type OperationState struct {
	Kind OperationKind
}

// Busy reports whether an operation is in flight.
func (o OperationState) Busy() bool {
	return o.Kind != OpNone
}

func (o OperationState) String() string {
	return o.Kind.String()
}

// SortField selects the column the list is ordered by.
type SortField string

const (
	SortByName    SortField = "name"
	SortBySize    SortField = "size"
	SortByCreated SortField = "created"
)

// ParseSortField accepts "name", "size", "created" (or "date").
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "name":
		return SortByName, nil
	case "size":
		return SortBySize, nil
	case "created", "date":
		return SortByCreated, nil
	}
	return "", fmt.Errorf("unknown sort field %q (valid: name, size, created)", s)
}

// Row is one rendered line: the entry plus its transient state.
type Row struct {
	Entry     models.Entry
	Operation OperationState
	Selected  bool
}

// FileListState is an observable file list container.
// It holds the current list of files/folders and publishes events on changes.
// Thread-safe for concurrent access.
type FileListState struct {
	// Event bus for publishing changes
	eventBus *events.EventBus

	// Current state
	items     []models.Entry
	selected  map[models.EntryID]bool
	ops       map[models.EntryID]OperationState
	sortBy    SortField
	ascending bool
	folderID  models.EntryID
	loading   bool
	lastError error

	mu sync.RWMutex
}

// NewFileListState creates a new FileListState.
func NewFileListState(eventBus *events.EventBus) *FileListState {
	return &FileListState{
		eventBus:  eventBus,
		items:     make([]models.Entry, 0),
		selected:  make(map[models.EntryID]bool),
		ops:       make(map[models.EntryID]OperationState),
		sortBy:    SortByName,
		ascending: true,
	}
}

// GetItems returns a copy of the current items.
func (s *FileListState) GetItems() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Entry, len(s.items))
	copy(result, s.items)
	return result
}

// Rows returns the items together with their operation and selection state.
func (s *FileListState) Rows() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]Row, len(s.items))
	for i, e := range s.items {
		rows[i] = Row{Entry: e, Operation: s.ops[e.ID], Selected: s.selected[e.ID]}
	}
	return rows
}

// SetItems replaces the file list and publishes a change event.
// Selections and in-flight operations on ids that are no longer listed are dropped.
func (s *FileListState) SetItems(items []models.Entry) {
	s.mu.Lock()
	s.items = make([]models.Entry, len(items))
	copy(s.items, items)
	s.sortItems() // Apply current sort
	s.loading = false
	s.lastError = nil

	present := make(map[models.EntryID]bool, len(s.items))
	for _, e := range s.items {
		present[e.ID] = true
	}
	for id := range s.selected {
		if !present[id] {
			delete(s.selected, id)
		}
	}
	for id := range s.ops {
		if !present[id] {
			delete(s.ops, id)
		}
	}

	folderID := s.folderID
	itemsCopy := s.copyItemsLocked()
	s.mu.Unlock()

	s.eventBus.Publish(NewFileListChangedEvent(folderID, itemsCopy))
}

// UpdateItem replaces the entry with the same id, keeping its position
// under the current sort. Returns false if the id is not listed.
func (s *FileListState) UpdateItem(entry models.Entry) bool {
	s.mu.Lock()
	found := false
	for i := range s.items {
		if s.items[i].ID == entry.ID {
			s.items[i] = entry
			found = true
			break
		}
	}
	if found {
		s.sortItems()
	}
	folderID := s.folderID
	itemsCopy := s.copyItemsLocked()
	s.mu.Unlock()

	if found {
		s.eventBus.Publish(NewFileListChangedEvent(folderID, itemsCopy))
	}
	return found
}

// RemoveItem drops an entry (after delete or move out of the folder).
func (s *FileListState) RemoveItem(id models.EntryID) bool {
	s.mu.Lock()
	idx := -1
	for i := range s.items {
		if s.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx >= 0 {
		s.items = append(s.items[:idx], s.items[idx+1:]...)
		delete(s.selected, id)
	}
	folderID := s.folderID
	itemsCopy := s.copyItemsLocked()
	s.mu.Unlock()

	if idx >= 0 {
		s.eventBus.Publish(NewFileListChangedEvent(folderID, itemsCopy))
	}
	return idx >= 0
}

// SetStarred flips the starred flag locally and returns the previous value
// so a failed request can restore it.
func (s *FileListState) SetStarred(id models.EntryID, starred bool) (previous bool, ok bool) {
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			previous = s.items[i].Starred
			s.items[i].Starred = starred
			ok = true
			break
		}
	}
	folderID := s.folderID
	itemsCopy := s.copyItemsLocked()
	s.mu.Unlock()

	if ok {
		s.eventBus.Publish(NewFileListChangedEvent(folderID, itemsCopy))
	}
	return previous, ok
}

func (s *FileListState) copyItemsLocked() []models.Entry {
	out := make([]models.Entry, len(s.items))
	copy(out, s.items)
	return out
}

// BeginOperation marks id busy with kind. It returns false, and changes
// nothing, when the item already has an operation in flight.
func (s *FileListState) BeginOperation(id models.EntryID, kind OperationKind) bool {
	if kind == OpNone {
		return false
	}

	s.mu.Lock()
	if s.ops[id].Busy() {
		s.mu.Unlock()
		return false
	}
	op := OperationState{Kind: kind}
	s.ops[id] = op
	s.mu.Unlock()

	s.eventBus.Publish(NewOperationChangedEvent(id, op))
	return true
}

// EndOperation returns id to idle.
func (s *FileListState) EndOperation(id models.EntryID) {
	s.mu.Lock()
	_, had := s.ops[id]
	delete(s.ops, id)
	s.mu.Unlock()

	if had {
		s.eventBus.Publish(NewOperationChangedEvent(id, OperationState{}))
	}
}

// Operation returns the operation running on id (idle if none).
func (s *FileListState) Operation(id models.EntryID) OperationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops[id]
}

// IsBusy reports whether id has an operation in flight.
func (s *FileListState) IsBusy(id models.EntryID) bool {
	return s.Operation(id).Busy()
}

// SetLoading marks the list as loading and publishes an event.
func (s *FileListState) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	folderID := s.folderID
	s.mu.Unlock()

	s.eventBus.Publish(NewFileListLoadingEvent(folderID, loading))
}

// IsLoading returns whether the list is currently loading.
func (s *FileListState) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetError sets the last error and publishes an error event.
// The current items are kept.
func (s *FileListState) SetError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.loading = false
	folderID := s.folderID
	s.mu.Unlock()

	if err != nil {
		s.eventBus.Publish(NewFileListErrorEvent(folderID, err))
	}
}

// GetError returns the last error.
func (s *FileListState) GetError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// SetCurrentFolder updates the current folder and publishes an event.
func (s *FileListState) SetCurrentFolder(folderID models.EntryID) {
	s.mu.Lock()
	s.folderID = folderID
	s.mu.Unlock()

	s.eventBus.Publish(NewCurrentFolderChangedEvent(folderID))
}

// GetCurrentFolder returns the current folder ID.
func (s *FileListState) GetCurrentFolder() models.EntryID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.folderID
}

// Select adds an item to the selection.
func (s *FileListState) Select(id models.EntryID) {
	s.mu.Lock()
	s.selected[id] = true
	selectedIDs := s.getSelectedIDsLocked()
	s.mu.Unlock()

	s.eventBus.Publish(NewSelectionChangedEvent(selectedIDs))
}

// Deselect removes an item from the selection.
func (s *FileListState) Deselect(id models.EntryID) {
	s.mu.Lock()
	delete(s.selected, id)
	selectedIDs := s.getSelectedIDsLocked()
	s.mu.Unlock()

	s.eventBus.Publish(NewSelectionChangedEvent(selectedIDs))
}

// ToggleSelect toggles an item's selection state.
func (s *FileListState) ToggleSelect(id models.EntryID) {
	s.mu.Lock()
	if s.selected[id] {
		delete(s.selected, id)
	} else {
		s.selected[id] = true
	}
	selectedIDs := s.getSelectedIDsLocked()
	s.mu.Unlock()

	s.eventBus.Publish(NewSelectionChangedEvent(selectedIDs))
}

// ClearSelection clears all selections.
func (s *FileListState) ClearSelection() {
	s.mu.Lock()
	s.selected = make(map[models.EntryID]bool)
	s.mu.Unlock()

	s.eventBus.Publish(NewSelectionChangedEvent([]models.EntryID{}))
}

// IsSelected returns whether an item is selected.
func (s *FileListState) IsSelected(id models.EntryID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected[id]
}

// GetSelectedIDs returns the IDs of selected items in list order.
func (s *FileListState) GetSelectedIDs() []models.EntryID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSelectedIDsLocked()
}

// getSelectedIDsLocked returns selected IDs (must hold lock).
func (s *FileListState) getSelectedIDsLocked() []models.EntryID {
	ids := make([]models.EntryID, 0, len(s.selected))
	for _, e := range s.items {
		if s.selected[e.ID] {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// GetSelectedItems returns the selected items.
func (s *FileListState) GetSelectedItems() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Entry, 0, len(s.selected))
	for _, item := range s.items {
		if s.selected[item.ID] {
			result = append(result, item)
		}
	}
	return result
}

// SetSort updates the sort order and re-sorts the list.
func (s *FileListState) SetSort(sortBy SortField, ascending bool) {
	s.mu.Lock()
	s.sortBy = sortBy
	s.ascending = ascending
	s.sortItems()
	itemsCopy := s.copyItemsLocked()
	folderID := s.folderID
	s.mu.Unlock()

	s.eventBus.Publish(NewSortChangedEvent(sortBy, ascending))
	s.eventBus.Publish(NewFileListChangedEvent(folderID, itemsCopy))
}

// GetSort returns the current sort settings.
func (s *FileListState) GetSort() (SortField, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortBy, s.ascending
}

// sortItems sorts the items by current sort settings (must hold lock).
func (s *FileListState) sortItems() {
	if len(s.items) == 0 {
		return
	}

	sort.SliceStable(s.items, func(i, j int) bool {
		a, b := s.items[i], s.items[j]

		// Folders always come first
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}

		var cmp int
		switch s.sortBy {
		case SortBySize:
			cmp = compareInt64(a.Size, b.Size)
		case SortByCreated:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		default:
			cmp = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}

		if s.ascending {
			return cmp < 0
		}
		return cmp > 0
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Clear clears all items, selection and operations.
func (s *FileListState) Clear() {
	s.mu.Lock()
	s.items = make([]models.Entry, 0)
	s.selected = make(map[models.EntryID]bool)
	s.ops = make(map[models.EntryID]OperationState)
	s.lastError = nil
	folderID := s.folderID
	s.mu.Unlock()

	s.eventBus.Publish(NewFileListChangedEvent(folderID, []models.Entry{}))
	s.eventBus.Publish(NewSelectionChangedEvent([]models.EntryID{}))
}

// FindByID finds an item by ID.
func (s *FileListState) FindByID(id models.EntryID) (models.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return models.Entry{}, false
}

// Count returns the number of items.
func (s *FileListState) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
