package state

import (
	"errors"
	"testing"
	"time"

	"github.com/keystone-cm/filedesk/internal/events"
	"github.com/keystone-cm/filedesk/internal/models"
)

var errTest = errors.New("test error")

func viewEdit() models.PermissionSet {
	return models.NewPermissionSet(models.PermissionView, models.PermissionEdit)
}

func TestPickerStateTransitions(t *testing.T) {
	p := NewPicker(nil, nil)
	if p.State() != PickerEmpty {
		t.Fatalf("State() = %v, want empty", p.State())
	}

	a := entry("1", "a", models.KindFolder, 0)
	if err := p.Toggle(a); err != nil {
		t.Fatal(err)
	}
	if p.State() != PickerHasSelection {
		t.Errorf("State() = %v, want has_selection", p.State())
	}

	if err := p.Toggle(a); err != nil {
		t.Fatal(err)
	}
	if p.State() != PickerEmpty {
		t.Errorf("State() after removing last entry = %v, want empty", p.State())
	}

	if _, err := p.Confirm(); err != nil {
		t.Fatal(err)
	}
	if p.State() != PickerClosed {
		t.Errorf("State() after confirm = %v, want closed", p.State())
	}
}

func TestPickerConfirmAppliesPermissionsUniformly(t *testing.T) {
	a := entry("1", "a", models.KindFolder, 0)
	b := entry("2", "b.txt", models.KindFile, 10)

	orders := map[string]func(p *Picker){
		"toggle before edit": func(p *Picker) {
			p.Toggle(a)
			p.Toggle(b)
			p.OpenPermissions()
			p.TogglePermission(models.PermissionView)
			p.TogglePermission(models.PermissionEdit)
			p.ConfirmPermissions()
		},
		"edit between toggles": func(p *Picker) {
			p.Toggle(a)
			p.OpenPermissions()
			p.TogglePermission(models.PermissionView)
			p.TogglePermission(models.PermissionEdit)
			p.ConfirmPermissions()
			p.Toggle(b)
		},
		"edit before toggles": func(p *Picker) {
			p.OpenPermissions()
			p.TogglePermission(models.PermissionEdit)
			p.TogglePermission(models.PermissionView)
			p.ConfirmPermissions()
			p.Toggle(b)
			p.Toggle(a)
		},
	}

	for name, run := range orders {
		t.Run(name, func(t *testing.T) {
			p := NewPicker(nil, nil)
			run(p)

			out, err := p.Confirm()
			if err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}
			if len(out) != 2 {
				t.Fatalf("Confirm() returned %d entries, want 2", len(out))
			}
			for _, e := range out {
				if e.Permissions != viewEdit() {
					t.Errorf("entry %s permissions = %v, want %v", e.ID, e.Permissions, viewEdit())
				}
			}
		})
	}
}

func TestPickerRetoggleUsesActiveSet(t *testing.T) {
	p := NewPicker(nil, nil)
	a := entry("1", "a", models.KindFolder, 0)

	p.OpenPermissions()
	p.TogglePermission(models.PermissionOwner)
	p.ConfirmPermissions()
	p.Toggle(a)

	p.Toggle(a) // off
	p.OpenPermissions()
	p.TogglePermission(models.PermissionOwner)
	p.TogglePermission(models.PermissionView)
	p.ConfirmPermissions()
	p.Toggle(a) // back on

	sel := p.Selection()
	want := models.NewPermissionSet(models.PermissionView)
	if len(sel) != 1 || sel[0].Permissions != want {
		t.Errorf("Selection() = %+v, want one entry with %v", sel, want)
	}
}

func TestPickerCancelPermissionsKeepsActive(t *testing.T) {
	p := NewPicker(nil, nil)
	p.Toggle(entry("1", "a", models.KindFile, 0))
	p.OpenPermissions()
	p.TogglePermission(models.PermissionDelete)
	if err := p.CancelPermissions(); err != nil {
		t.Fatal(err)
	}

	if !p.Permissions().IsEmpty() {
		t.Errorf("Permissions() = %v, want empty after cancelled edit", p.Permissions())
	}
	if _, editing := p.Draft(); editing {
		t.Error("editor should be closed")
	}
	if err := p.TogglePermission(models.PermissionView); !errors.Is(err, ErrNotEditing) {
		t.Errorf("TogglePermission() without editor = %v, want ErrNotEditing", err)
	}
}

func TestPickerConfirmDropsUnconfirmedDraft(t *testing.T) {
	p := NewPicker(nil, nil)
	p.Toggle(entry("1", "a", models.KindFile, 0))
	p.OpenPermissions()
	p.TogglePermission(models.PermissionView)

	out, _ := p.Confirm()
	if !out[0].Permissions.IsEmpty() {
		t.Errorf("permissions = %v, want the unconfirmed draft discarded", out[0].Permissions)
	}
}

func TestPickerCancelRevertsToInitial(t *testing.T) {
	initial := []models.SelectionEntry{
		{ID: "9", Name: "keep", Kind: models.KindFolder, Permissions: models.NewPermissionSet(models.PermissionView)},
	}
	p := NewPicker(initial, nil)
	if p.Permissions() != models.NewPermissionSet(models.PermissionView) {
		t.Errorf("initial active set = %v, want view", p.Permissions())
	}

	p.Toggle(entry("9", "keep", models.KindFolder, 0))
	p.Toggle(entry("1", "new", models.KindFile, 0))
	p.OpenPermissions()
	p.TogglePermission(models.PermissionEdit)
	p.ConfirmPermissions()

	out := p.Cancel()
	if len(out) != 1 || out[0].ID != "9" || out[0].Permissions != models.NewPermissionSet(models.PermissionView) {
		t.Errorf("Cancel() = %+v, want the initial selection", out)
	}
	if p.State() != PickerClosed {
		t.Errorf("State() = %v, want closed", p.State())
	}

	// initial slice is not aliased
	initial[0].Name = "changed"
	if p.Cancel()[0].Name != "keep" {
		t.Error("picker should hold its own copy of the initial selection")
	}
}

func TestPickerClosedRejectsMutations(t *testing.T) {
	p := NewPicker(nil, nil)
	p.Cancel()

	checks := map[string]error{
		"Toggle":             p.Toggle(entry("1", "a", models.KindFile, 0)),
		"OpenPermissions":    p.OpenPermissions(),
		"ConfirmPermissions": p.ConfirmPermissions(),
		"CancelPermissions":  p.CancelPermissions(),
		"TogglePermission":   p.TogglePermission(models.PermissionView),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrPickerClosed) {
			t.Errorf("%s on closed picker = %v, want ErrPickerClosed", name, err)
		}
	}
	if _, err := p.Confirm(); !errors.Is(err, ErrPickerClosed) {
		t.Errorf("Confirm on closed picker = %v, want ErrPickerClosed", err)
	}
}

func TestPickerGrantsErrorDoesNotBlock(t *testing.T) {
	p := NewPicker(nil, nil)
	p.SetGrantsError(errTest)
	if p.GrantsError() != errTest {
		t.Errorf("GrantsError() = %v", p.GrantsError())
	}
	if _, err := p.Confirm(); err != nil {
		t.Errorf("Confirm() with grants error = %v, want nil", err)
	}
}

func TestPickerPublishesEvents(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	changed := bus.Subscribe(EventPickerChanged)
	closed := bus.Subscribe(EventPickerClosed)

	p := NewPicker(nil, bus)
	p.Toggle(entry("1", "a", models.KindFile, 0))

	select {
	case ev := <-changed:
		if pc := ev.(*PickerChangedEvent); pc.State != PickerHasSelection || len(pc.Selection) != 1 {
			t.Errorf("changed event = %+v", pc)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("missing picker changed event")
	}

	p.Confirm()
	select {
	case ev := <-closed:
		if pc := ev.(*PickerClosedEvent); !pc.Confirmed {
			t.Error("closed event should report confirmation")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("missing picker closed event")
	}
}
