package packets

import "github.com/tilewire-project/tilewire/internal/protocol"

// ChatMessage is a line of chat. A client sends only its player index and the
// text; the server adds the color it should be rendered in. The Color field
// is therefore only carried when decoding or encoding with ClientSide.
type ChatMessage struct {
	protocol.Dirty
	Player protocol.Value[uint8]
	Color  protocol.Value[protocol.Color]
	Text   protocol.Value[string]
}

func NewChatMessage() *ChatMessage {
	m := &ChatMessage{}
	m.Track(&m.Player, &m.Color, &m.Text)
	return m
}

func (m *ChatMessage) Type() protocol.MessageType { return TypeChatMessage }
func (m *ChatMessage) PlayerIndex() uint8         { return m.Player.Get() }

func (m *ChatMessage) ReadBody(r *protocol.Reader, ctx protocol.Context) error {
	m.Player.Set(r.Uint8())
	var c protocol.Color
	if ctx == protocol.ClientSide {
		c = r.Color()
	}
	m.Color.Set(c)
	m.Text.Set(r.Text())
	return r.Err()
}

func (m *ChatMessage) WriteBody(w *protocol.Writer, ctx protocol.Context) error {
	w.Uint8(m.Player.Get())
	if ctx == protocol.ClientSide {
		w.Color(m.Color.Get())
	}
	w.Text(m.Text.Get())
	return nil
}
