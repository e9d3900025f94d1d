package packets

import "github.com/tilewire-project/tilewire/internal/protocol"

// ConnectRequest is the first message a client sends; Version is the
// client's protocol string, e.g. "Terraria279".
type ConnectRequest struct {
	protocol.Dirty
	Version protocol.Value[string]
}

func NewConnectRequest() *ConnectRequest {
	m := &ConnectRequest{}
	m.Track(&m.Version)
	return m
}

func (m *ConnectRequest) Type() protocol.MessageType { return TypeConnectRequest }

func (m *ConnectRequest) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Version.Set(r.Text())
	return r.Err()
}

func (m *ConnectRequest) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Text(m.Version.Get())
	return nil
}

// Disconnect tells the client why the server is closing the session.
type Disconnect struct {
	protocol.Dirty
	Reason protocol.Value[string]
}

func NewDisconnect() *Disconnect {
	m := &Disconnect{}
	m.Track(&m.Reason)
	return m
}

func (m *Disconnect) Type() protocol.MessageType { return TypeDisconnect }

func (m *Disconnect) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Reason.Set(r.Text())
	return r.Err()
}

func (m *Disconnect) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Text(m.Reason.Get())
	return nil
}

// ContinueConnecting assigns the client its player slot.
type ContinueConnecting struct {
	protocol.Dirty
	Player protocol.Value[uint8]
}

func NewContinueConnecting() *ContinueConnecting {
	m := &ContinueConnecting{}
	m.Track(&m.Player)
	return m
}

func (m *ContinueConnecting) Type() protocol.MessageType { return TypeContinueConnecting }

func (m *ContinueConnecting) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	return r.Err()
}

func (m *ContinueConnecting) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	return nil
}

// PasswordSend answers the server's password challenge.
type PasswordSend struct {
	protocol.Dirty
	Password protocol.Value[string]
}

func NewPasswordSend() *PasswordSend {
	m := &PasswordSend{}
	m.Track(&m.Password)
	return m
}

func (m *PasswordSend) Type() protocol.MessageType { return TypePasswordSend }

func (m *PasswordSend) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Password.Set(r.Text())
	return r.Err()
}

func (m *PasswordSend) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Text(m.Password.Get())
	return nil
}
