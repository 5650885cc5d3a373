package layout

import "testing"

func TestAddPaneSplitsSingleIntoVertical(t *testing.T) {
	root := NewSingle("A")
	root, err := AddPane(root, "A", "B", East, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if root.IsLeaf() || root.Axis != Vertical {
		t.Fatalf("root = %+v, want vertical split", root)
	}
	if root.First.PaneID != "A" || root.Second.PaneID != "B" {
		t.Fatalf("root children = %q/%q, want A/B", root.First.PaneID, root.Second.PaneID)
	}
}

func TestLayoutResizeScenarioFromSpec(t *testing.T) {
	// Split(vertical, 0.5, A, Split(horizontal, 0.5, B, C))
	root := &Node{
		Axis:  Vertical,
		Ratio: 0.5,
		First: &Node{PaneID: "A"},
		Second: &Node{
			Axis:   Horizontal,
			Ratio:  0.5,
			First:  &Node{PaneID: "B"},
			Second: &Node{PaneID: "C"},
		},
	}
	relink(root, nil)

	if err := ResizePane(root, "B", South, 0.1); err != nil {
		t.Fatal(err)
	}
	if got := root.Second.Ratio; got != 0.6 {
		t.Errorf("inner split ratio = %v, want 0.6", got)
	}
	// Unrelated splits untouched.
	if root.Ratio != 0.5 {
		t.Errorf("outer split ratio = %v, want unchanged 0.5", root.Ratio)
	}
}

func TestResizeClampsToRatioBounds(t *testing.T) {
	root := &Node{Axis: Vertical, Ratio: 0.85, First: &Node{PaneID: "A"}, Second: &Node{PaneID: "B"}}
	relink(root, nil)

	if err := ResizePane(root, "A", East, 0.5); err != nil {
		t.Fatal(err)
	}
	if root.Ratio != maxRatio {
		t.Errorf("ratio = %v, want clamped to %v", root.Ratio, maxRatio)
	}
}

func TestAddPaneThenRemovePaneRoundTripsStructurally(t *testing.T) {
	root := NewSingle("A")
	afterAdd, err := AddPane(root, "A", "B", East, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	ids := CollectPaneIDs(afterAdd)
	if len(ids) != 2 || ids[0] != "A" || ids[1] != "B" {
		t.Fatalf("collect = %v, want [A B]", ids)
	}

	afterRemove, focus, err := RemovePane(afterAdd, "B")
	if err != nil {
		t.Fatal(err)
	}
	if !afterRemove.IsLeaf() || afterRemove.PaneID != "A" {
		t.Fatalf("after remove = %+v, want leaf A", afterRemove)
	}
	if focus != "A" {
		t.Errorf("focus = %q, want A", focus)
	}
}

func TestRemovePaneOfOnlyPaneFails(t *testing.T) {
	root := NewSingle("A")
	if _, _, err := RemovePane(root, "A"); err != ErrLastPane {
		t.Fatalf("err = %v, want ErrLastPane", err)
	}
}

func TestFindAdjacentPaneAcrossNestedSplits(t *testing.T) {
	// Same shape as the resize scenario: A | (B / C)
	root := &Node{
		Axis:  Vertical,
		Ratio: 0.5,
		First: &Node{PaneID: "A"},
		Second: &Node{
			Axis:   Horizontal,
			Ratio:  0.5,
			First:  &Node{PaneID: "B"},
			Second: &Node{PaneID: "C"},
		},
	}
	relink(root, nil)
	bounds := Rects(root, Rect{X: 0, Y: 0, W: 100, H: 40})

	if got, ok := FindAdjacentPane(root, bounds, "B", West); !ok || got != "A" {
		t.Errorf("B west = %q, %v, want A, true", got, ok)
	}
	if got, ok := FindAdjacentPane(root, bounds, "B", South); !ok || got != "C" {
		t.Errorf("B south = %q, %v, want C, true", got, ok)
	}
	if _, ok := FindAdjacentPane(root, bounds, "A", East); !ok {
		t.Error("A east should find something on the right side")
	}
	if _, ok := FindAdjacentPane(root, bounds, "A", North); ok {
		t.Error("A north should find nothing")
	}
}

func TestSwapPaneInDirectionExchangesLabelsOnly(t *testing.T) {
	root, err := AddPane(NewSingle("A"), "A", "B", East, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	bounds := Rects(root, Rect{X: 0, Y: 0, W: 80, H: 24})

	if err := SwapPaneInDirection(root, bounds, "A", East); err != nil {
		t.Fatal(err)
	}
	if root.First.PaneID != "B" || root.Second.PaneID != "A" {
		t.Fatalf("after swap = %q/%q, want B/A", root.First.PaneID, root.Second.PaneID)
	}
}
