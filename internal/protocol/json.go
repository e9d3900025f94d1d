package protocol

import (
	"encoding/hex"
	"encoding/json"
)

// The tracked containers keep their state unexported, so decoded messages
// need these to render as plain JSON for the API and the decode command.

func (f *Value[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.v)
}

func (a *Array[T]) MarshalJSON() ([]byte, error) {
	items, err := elements(a.items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(items)
}

// MarshalJSON renders the grid as columns, cells[x][y].
func (g *Grid[T]) MarshalJSON() ([]byte, error) {
	cols := make([][]json.RawMessage, g.width)
	for x := range cols {
		col, err := elements(g.cells[x*g.height : (x+1)*g.height])
		if err != nil {
			return nil, err
		}
		cols[x] = col
	}
	return json.Marshal(struct {
		Width  int                 `json:"width"`
		Height int                 `json:"height"`
		Cells  [][]json.RawMessage `json:"cells"`
	}{g.width, g.height, cols})
}

// elements marshals each item on its own so byte slices render as number
// arrays instead of base64.
func elements[T any](items []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(items))
	for i, v := range items {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// MarshalJSON renders the raw header bytes as hex.
func (f *Flags) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(f.b))
}
