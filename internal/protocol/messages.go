// Package protocol defines the JSON wire shapes exchanged between the
// server and its WebSocket clients (spec §6). The core packages
// (piecetable, history, editor) depend on the Edit/EditAction types here
// but never perform any (de)serialization themselves — wire encoding is a
// transport concern.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Edit is one client operation, or — on the return path out of
// Editor.Edit — the canonical, rebased edit the server applied.
type Edit struct {
	Pos int
	// Rev is the base revision the client was synchronized to when it
	// issued the edit; the server overwrites it with the assigned
	// revision before broadcasting.
	Rev    uint32
	Action EditAction
}

// EditAction is the tagged Insert/Delete payload of an Edit.
type EditAction interface {
	isEditAction()
}

// Insert inserts Text immediately before the edit's Pos.
type Insert struct {
	Text string
}

// Delete removes Length bytes starting at the edit's Pos.
type Delete struct {
	Length int
}

func (Insert) isEditAction() {}
func (Delete) isEditAction() {}

// editWire is the on-the-wire shape of an Edit:
// {"pos":<int>,"rev":<int>,"action":{"Insert":"text"}|{"Delete":<int>}}.
type editWire struct {
	Pos    int             `json:"pos"`
	Rev    uint32          `json:"rev"`
	Action json.RawMessage `json:"action"`
}

// MarshalJSON implements the tagged-union wire shape for EditAction.
func (e Edit) MarshalJSON() ([]byte, error) {
	var action json.RawMessage
	var err error
	switch a := e.Action.(type) {
	case Insert:
		action, err = json.Marshal(struct {
			Insert string `json:"Insert"`
		}{a.Text})
	case Delete:
		action, err = json.Marshal(struct {
			Delete int `json:"Delete"`
		}{a.Length})
	default:
		return nil, fmt.Errorf("protocol: edit has no action")
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(editWire{Pos: e.Pos, Rev: e.Rev, Action: action})
}

// UnmarshalJSON parses the tagged-union wire shape for EditAction.
func (e *Edit) UnmarshalJSON(data []byte) error {
	var w editWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Action, &raw); err != nil {
		return fmt.Errorf("protocol: invalid action: %w", err)
	}

	switch {
	case raw["Insert"] != nil:
		var text string
		if err := json.Unmarshal(raw["Insert"], &text); err != nil {
			return fmt.Errorf("protocol: invalid Insert action: %w", err)
		}
		e.Action = Insert{Text: text}
	case raw["Delete"] != nil:
		var length int
		if err := json.Unmarshal(raw["Delete"], &length); err != nil {
			return fmt.Errorf("protocol: invalid Delete action: %w", err)
		}
		e.Action = Delete{Length: length}
	default:
		return fmt.Errorf("protocol: action has neither Insert nor Delete")
	}

	e.Pos = w.Pos
	e.Rev = w.Rev
	return nil
}

// Connect is the initial payload the server sends a client on connection
// open: the two-element JSON array [rev, buffer].
type Connect struct {
	Rev    uint32
	Buffer string
}

// MarshalJSON encodes Connect as the two-element array [rev, buffer].
func (c Connect) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{c.Rev, c.Buffer})
}

// UnmarshalJSON decodes the two-element array [rev, buffer].
func (c *Connect) UnmarshalJSON(data []byte) error {
	var arr [2]json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if err := json.Unmarshal(arr[0], &c.Rev); err != nil {
		return err
	}
	return json.Unmarshal(arr[1], &c.Buffer)
}

// Ack is the server's per-message reply to the sender: either
// {"success":true} or {"success":false,"reason":"..."}.
type Ack struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}
