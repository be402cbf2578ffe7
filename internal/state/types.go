// Package state provides observable state containers for the file browser.
// These containers emit events when state changes, allowing any frontend
// to subscribe and update its view accordingly.
package state

import (
	"github.com/keystone-cm/filedesk/internal/events"
	"github.com/keystone-cm/filedesk/internal/models"
)

// State event types
const (
	// File list events
	EventFileListChanged      events.EventType = "file_list_changed"
	EventFileListLoading      events.EventType = "file_list_loading"
	EventFileListError        events.EventType = "file_list_error"
	EventSelectionChanged     events.EventType = "selection_changed"
	EventSortChanged          events.EventType = "sort_changed"
	EventCurrentFolderChanged events.EventType = "current_folder_changed"
	EventOperationChanged     events.EventType = "operation_changed"

	// Picker events
	EventPickerChanged events.EventType = "picker_changed"
	EventPickerClosed  events.EventType = "picker_closed"
)

// FileListChangedEvent is published when the file list changes.
type FileListChangedEvent struct {
	events.BaseEvent
	Items    []models.Entry
	FolderID models.EntryID
}

// FileListLoadingEvent is published when a file list is being loaded.
type FileListLoadingEvent struct {
	events.BaseEvent
	FolderID models.EntryID
	Loading  bool
}

// FileListErrorEvent is published when a file list load fails.
type FileListErrorEvent struct {
	events.BaseEvent
	FolderID models.EntryID
	Error    error
}

// SelectionChangedEvent is published when the selection changes.
type SelectionChangedEvent struct {
	events.BaseEvent
	SelectedIDs []models.EntryID
}

// SortChangedEvent is published when the sort order changes.
type SortChangedEvent struct {
	events.BaseEvent
	SortBy    SortField
	Ascending bool
}

// CurrentFolderChangedEvent is published when the displayed folder changes.
type CurrentFolderChangedEvent struct {
	events.BaseEvent
	FolderID models.EntryID
}

// OperationChangedEvent is published when an item becomes busy or idle.
type OperationChangedEvent struct {
	events.BaseEvent
	EntryID   models.EntryID
	Operation OperationState
}

// PickerChangedEvent carries the picker's selection and active permissions.
type PickerChangedEvent struct {
	events.BaseEvent
	State       PickerState
	Selection   []models.SelectionEntry
	Permissions models.PermissionSet
	Editing     bool
}

// PickerClosedEvent is published once, when the picker is confirmed or cancelled.
type PickerClosedEvent struct {
	events.BaseEvent
	Confirmed bool
	Selection []models.SelectionEntry
}

func NewFileListChangedEvent(folderID models.EntryID, items []models.Entry) *FileListChangedEvent {
	return &FileListChangedEvent{
		BaseEvent: events.NewBase(EventFileListChanged),
		Items:     items,
		FolderID:  folderID,
	}
}

func NewFileListLoadingEvent(folderID models.EntryID, loading bool) *FileListLoadingEvent {
	return &FileListLoadingEvent{
		BaseEvent: events.NewBase(EventFileListLoading),
		FolderID:  folderID,
		Loading:   loading,
	}
}

func NewFileListErrorEvent(folderID models.EntryID, err error) *FileListErrorEvent {
	return &FileListErrorEvent{
		BaseEvent: events.NewBase(EventFileListError),
		FolderID:  folderID,
		Error:     err,
	}
}

func NewSelectionChangedEvent(selectedIDs []models.EntryID) *SelectionChangedEvent {
	return &SelectionChangedEvent{
		BaseEvent:   events.NewBase(EventSelectionChanged),
		SelectedIDs: selectedIDs,
	}
}

func NewSortChangedEvent(sortBy SortField, ascending bool) *SortChangedEvent {
	return &SortChangedEvent{
		BaseEvent: events.NewBase(EventSortChanged),
		SortBy:    sortBy,
		Ascending: ascending,
	}
}

func NewCurrentFolderChangedEvent(folderID models.EntryID) *CurrentFolderChangedEvent {
	return &CurrentFolderChangedEvent{
		BaseEvent: events.NewBase(EventCurrentFolderChanged),
		FolderID:  folderID,
	}
}

func NewOperationChangedEvent(id models.EntryID, op OperationState) *OperationChangedEvent {
	return &OperationChangedEvent{
		BaseEvent: events.NewBase(EventOperationChanged),
		EntryID:   id,
		Operation: op,
	}
}
