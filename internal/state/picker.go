package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/keystone-cm/filedesk/internal/events"
	"github.com/keystone-cm/filedesk/internal/models"
)

// PickerState is the selection dialog's lifecycle state.
type PickerState uint8

const (
	PickerEmpty PickerState = iota
	PickerHasSelection
	PickerClosed
)

func (s PickerState) String() string {
	switch s {
	case PickerEmpty:
		return "empty"
	case PickerHasSelection:
		return "has_selection"
	case PickerClosed:
		return "closed"
	}
	return fmt.Sprintf("picker_state(%d)", uint8(s))
}

var (
	ErrPickerClosed = errors.New("picker is closed")
	ErrNotEditing   = errors.New("permission editor is not open")
)

// Picker collects entries plus one permission set shared by the whole
// selection. Confirm stamps the active set onto every selected entry, so the
// order of toggles and permission edits does not matter for the result.
type Picker struct {
	eventBus *events.EventBus

	initial   []models.SelectionEntry
	selection []models.SelectionEntry
	active    models.PermissionSet
	draft     models.PermissionSet
	editing   bool
	closed    bool
	grantsErr error

	mu sync.Mutex
}

// NewPicker opens a picker pre-filled with initial. The active permission
// set starts as the union of the initial entries' permissions.
func NewPicker(initial []models.SelectionEntry, eventBus *events.EventBus) *Picker {
	p := &Picker{
		eventBus:  eventBus,
		initial:   cloneSelection(initial),
		selection: cloneSelection(initial),
	}
	for _, e := range initial {
		for _, perm := range e.Permissions.Slice() {
			p.active = p.active.Add(perm)
		}
	}
	return p
}

func cloneSelection(in []models.SelectionEntry) []models.SelectionEntry {
	out := make([]models.SelectionEntry, len(in))
	copy(out, in)
	return out
}

// State returns the current lifecycle state.
func (p *Picker) State() PickerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Picker) stateLocked() PickerState {
	switch {
	case p.closed:
		return PickerClosed
	case len(p.selection) == 0:
		return PickerEmpty
	default:
		return PickerHasSelection
	}
}

// Selection returns a copy of the current selection in toggle order.
func (p *Picker) Selection() []models.SelectionEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneSelection(p.selection)
}

// IsSelected reports whether id is in the selection.
func (p *Picker) IsSelected(id models.EntryID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexLocked(id) >= 0
}

// Permissions returns the active permission set.
func (p *Picker) Permissions() models.PermissionSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Draft returns the permission set being edited, if the editor is open.
func (p *Picker) Draft() (models.PermissionSet, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draft, p.editing
}

func (p *Picker) indexLocked(id models.EntryID) int {
	for i, e := range p.selection {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Toggle adds entry with the active permission set, or removes it.
func (p *Picker) Toggle(entry models.Entry) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPickerClosed
	}

	if i := p.indexLocked(entry.ID); i >= 0 {
		p.selection = append(p.selection[:i], p.selection[i+1:]...)
	} else {
		p.selection = append(p.selection, models.NewSelectionEntry(entry, p.active))
	}
	ev := p.changedEventLocked()
	p.mu.Unlock()

	p.eventBus.Publish(ev)
	return nil
}

// OpenPermissions starts editing a draft copy of the active set.
func (p *Picker) OpenPermissions() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPickerClosed
	}
	p.draft = p.active
	p.editing = true
	ev := p.changedEventLocked()
	p.mu.Unlock()

	p.eventBus.Publish(ev)
	return nil
}

// TogglePermission flips perm in the draft.
func (p *Picker) TogglePermission(perm models.Permission) error {
	if !perm.Valid() {
		return fmt.Errorf("invalid permission: %s", perm)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPickerClosed
	}
	if !p.editing {
		p.mu.Unlock()
		return ErrNotEditing
	}
	p.draft = p.draft.Toggle(perm)
	ev := p.changedEventLocked()
	p.mu.Unlock()

	p.eventBus.Publish(ev)
	return nil
}

// ConfirmPermissions makes the draft the active set and applies it to every
// selected entry.
func (p *Picker) ConfirmPermissions() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPickerClosed
	}
	if !p.editing {
		p.mu.Unlock()
		return ErrNotEditing
	}
	p.active = p.draft
	p.editing = false
	p.applyActiveLocked()
	ev := p.changedEventLocked()
	p.mu.Unlock()

	p.eventBus.Publish(ev)
	return nil
}

// CancelPermissions discards the draft.
func (p *Picker) CancelPermissions() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPickerClosed
	}
	p.editing = false
	p.draft = 0
	ev := p.changedEventLocked()
	p.mu.Unlock()

	p.eventBus.Publish(ev)
	return nil
}

func (p *Picker) applyActiveLocked() {
	for i := range p.selection {
		p.selection[i].Permissions = p.active
	}
}

// Confirm closes the picker and returns the selection, every entry carrying
// the active permission set. An unconfirmed draft is discarded.
func (p *Picker) Confirm() ([]models.SelectionEntry, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPickerClosed
	}
	p.editing = false
	p.applyActiveLocked()
	p.closed = true
	out := cloneSelection(p.selection)
	p.mu.Unlock()

	p.eventBus.Publish(&PickerClosedEvent{
		BaseEvent: events.NewBase(EventPickerClosed),
		Confirmed: true,
		Selection: cloneSelection(out),
	})
	return out, nil
}

// Cancel closes the picker and returns the selection it was opened with.
// On an already closed picker it only returns that selection.
func (p *Picker) Cancel() []models.SelectionEntry {
	p.mu.Lock()
	out := cloneSelection(p.initial)
	if p.closed {
		p.mu.Unlock()
		return out
	}
	p.closed = true
	p.editing = false
	p.selection = cloneSelection(p.initial)
	p.mu.Unlock()

	p.eventBus.Publish(&PickerClosedEvent{
		BaseEvent: events.NewBase(EventPickerClosed),
		Confirmed: false,
		Selection: cloneSelection(out),
	})
	return out
}

// SetGrantsError records that loading existing grants failed. The picker
// stays usable; callers show an empty state.
func (p *Picker) SetGrantsError(err error) {
	p.mu.Lock()
	p.grantsErr = err
	p.mu.Unlock()
}

// GrantsError returns the last recorded grants fetch failure.
func (p *Picker) GrantsError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grantsErr
}

func (p *Picker) changedEventLocked() *PickerChangedEvent {
	return &PickerChangedEvent{
		BaseEvent:   events.NewBase(EventPickerChanged),
		State:       p.stateLocked(),
		Selection:   cloneSelection(p.selection),
		Permissions: p.active,
		Editing:     p.editing,
	}
}
