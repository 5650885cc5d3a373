// Package persist implements spec §6.4's persisted-state handoff: the core
// accepts an opaque JSON blob describing BSP tree shape, pane CWDs, and the
// active workspace id, without owning its schema — the host decides when
// and where to write it to disk.
//
// Grounded on the teacher's internal/commands (JSONGet/JSONSet/JSONDelete,
// dot-notation path navigation through a map[string]interface{}),
// generalized from "edit an arbitrary file on disk by path" to "edit an
// in-memory layout document"; file I/O is the host's responsibility, not
// this package's, so the file-path/expandTilde half of the teacher's
// implementation is dropped.
package persist

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document is an opaque JSON object the core can patch by dot-path without
// knowing its full schema.
type Document struct {
	root map[string]any
}

// New returns an empty Document.
func New() *Document {
	return &Document{root: make(map[string]any)}
}

// Load parses data as a Document. data must be a JSON object.
func Load(data []byte) (*Document, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("persist: parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// Marshal renders the document as indented JSON.
func (d *Document) Marshal() ([]byte, error) {
	out, err := json.MarshalIndent(d.root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("persist: serialize document: %w", err)
	}
	return out, nil
}

func splitPath(keyPath string) ([]string, error) {
	keys := strings.Split(keyPath, ".")
	if len(keys) == 0 || (len(keys) == 1 && keys[0] == "") {
		return nil, fmt.Errorf("persist: empty key path")
	}
	return keys, nil
}

// Get returns the value at keyPath (e.g. "activeWorkspaceId" or
// "panes.0.cwd"), or an error if any segment is missing. Every segment is
// an object key: JSON arrays are not indexed, so a path through an array
// (such as WorkspaceState's panes list) reports the segment as not found.
func (d *Document) Get(keyPath string) (any, error) {
	keys, err := splitPath(keyPath)
	if err != nil {
		return nil, err
	}

	var value any = d.root
	for _, key := range keys {
		if key == "" {
			continue
		}
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("persist: key %q not found in path %q", key, keyPath)
		}
		value, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("persist: key %q not found in path %q", key, keyPath)
		}
	}
	return value, nil
}

// Set writes value at keyPath, creating intermediate objects as needed.
func (d *Document) Set(keyPath string, value any) error {
	keys, err := splitPath(keyPath)
	if err != nil {
		return err
	}

	current := d.root
	for i, key := range keys[:len(keys)-1] {
		if key == "" {
			continue
		}
		next, ok := current[key]
		if !ok {
			newObj := make(map[string]any)
			current[key] = newObj
			current = newObj
			continue
		}
		nextObj, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("persist: key %q at path index %d is not an object", key, i)
		}
		current = nextObj
	}

	current[keys[len(keys)-1]] = value
	return nil
}

// Delete removes the value at keyPath.
func (d *Document) Delete(keyPath string) error {
	keys, err := splitPath(keyPath)
	if err != nil {
		return err
	}

	current := d.root
	for _, key := range keys[:len(keys)-1] {
		if key == "" {
			continue
		}
		next, ok := current[key]
		if !ok {
			return fmt.Errorf("persist: key %q not found", key)
		}
		nextObj, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("persist: key %q is not an object", key)
		}
		current = nextObj
	}

	finalKey := keys[len(keys)-1]
	if _, ok := current[finalKey]; !ok {
		return fmt.Errorf("persist: key %q not found", finalKey)
	}
	delete(current, finalKey)
	return nil
}

// LayoutNode is the persisted shape of one internal/layout.Node: either a
// leaf (PaneID set) or a split (Axis/Ratio/First/Second set).
type LayoutNode struct {
	PaneID string      `json:"paneId,omitempty"`
	Axis   string      `json:"axis,omitempty"`
	Ratio  float64     `json:"ratio,omitempty"`
	First  *LayoutNode `json:"first,omitempty"`
	Second *LayoutNode `json:"second,omitempty"`
}

// PaneState is the persisted per-pane metadata a host may want to restore
// a pane's working directory and title across restarts.
type PaneState struct {
	ID    string `json:"id"`
	CWD   string `json:"cwd"`
	Title string `json:"title,omitempty"`
}

// WorkspaceState is the default persisted shape spec §6.4 describes: BSP
// tree, pane CWDs, and the active workspace id. Hosts that want a
// different shape can still drive Document.Get/Set directly — this type
// is a convenience, not the only legal document shape.
type WorkspaceState struct {
	ActiveWorkspaceID string       `json:"activeWorkspaceId"`
	Layout            *LayoutNode  `json:"layout"`
	Panes             []PaneState  `json:"panes"`
}

// ToDocument renders a WorkspaceState as a Document for dot-path patching.
func (w WorkspaceState) ToDocument() (*Document, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("persist: serialize workspace state: %w", err)
	}
	return Load(data)
}

// WorkspaceState decodes the document back into the convenience shape.
func (d *Document) WorkspaceState() (WorkspaceState, error) {
	data, err := d.Marshal()
	if err != nil {
		return WorkspaceState{}, err
	}
	var w WorkspaceState
	if err := json.Unmarshal(data, &w); err != nil {
		return WorkspaceState{}, fmt.Errorf("persist: decode workspace state: %w", err)
	}
	return w, nil
}
