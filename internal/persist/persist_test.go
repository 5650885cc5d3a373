package persist

import "testing"

func TestSetThenGetRoundTripsThroughNestedPath(t *testing.T) {
	d := New()
	if err := d.Set("panes.0.cwd", "/home/user/project"); err != nil {
		t.Fatal(err)
	}
	v, err := d.Get("panes.0.cwd")
	if err != nil {
		t.Fatal(err)
	}
	if v != "/home/user/project" {
		t.Errorf("got %v, want /home/user/project", v)
	}
}

func TestSetOverwritesExistingScalarWithoutDisturbingSiblings(t *testing.T) {
	d := New()
	d.Set("activeWorkspaceId", "ws-1")
	d.Set("layout.axis", "vertical")

	if err := d.Set("activeWorkspaceId", "ws-2"); err != nil {
		t.Fatal(err)
	}
	v, _ := d.Get("activeWorkspaceId")
	if v != "ws-2" {
		t.Errorf("activeWorkspaceId = %v, want ws-2", v)
	}
	axis, err := d.Get("layout.axis")
	if err != nil || axis != "vertical" {
		t.Errorf("layout.axis = %v, %v, want vertical, nil", axis, err)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	d := New()
	d.Set("scratch", "value")
	if err := d.Delete("scratch"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Get("scratch"); err == nil {
		t.Error("expected scratch to be gone after Delete")
	}
}

func TestGetMissingKeyErrors(t *testing.T) {
	d := New()
	if _, err := d.Get("nope"); err == nil {
		t.Error("expected an error for a missing key")
	}
}

func TestWorkspaceStateRoundTripsThroughDocument(t *testing.T) {
	w := WorkspaceState{
		ActiveWorkspaceID: "ws-1",
		Layout: &LayoutNode{
			Axis:  "vertical",
			Ratio: 0.5,
			First: &LayoutNode{PaneID: "pane-1"},
			Second: &LayoutNode{
				Axis:  "horizontal",
				Ratio: 0.5,
				First: &LayoutNode{PaneID: "pane-2"},
				Second: &LayoutNode{PaneID: "pane-3"},
			},
		},
		Panes: []PaneState{
			{ID: "pane-1", CWD: "/a"},
			{ID: "pane-2", CWD: "/b"},
		},
	}

	doc, err := w.ToDocument()
	if err != nil {
		t.Fatal(err)
	}
	got, err := doc.WorkspaceState()
	if err != nil {
		t.Fatal(err)
	}
	if got.ActiveWorkspaceID != w.ActiveWorkspaceID || len(got.Panes) != 2 {
		t.Errorf("got = %+v, want %+v", got, w)
	}
	if got.Layout.Second.First.PaneID != "pane-2" {
		t.Errorf("nested layout did not round-trip: %+v", got.Layout)
	}
}
