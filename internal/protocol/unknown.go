package protocol

// Unknown carries the raw body of a frame whose type id has no registered
// message. Re-encoding it reproduces the original frame byte for byte, so
// intermediaries can forward traffic they do not understand.
type Unknown struct {
	Dirty
	TypeID  MessageType
	Payload []byte
}

// NewUnknown returns an empty Unknown for id.
func NewUnknown(id MessageType) *Unknown {
	return &Unknown{TypeID: id}
}

func (u *Unknown) Type() MessageType {
	return u.TypeID
}

// SetPayload replaces the raw body.
func (u *Unknown) SetPayload(b []byte) {
	u.Payload = b
	u.MarkDirty()
}

func (u *Unknown) ReadBody(r *Reader, _ Context) error {
	u.Payload = r.Rest()
	return r.Err()
}

func (u *Unknown) WriteBody(w *Writer, _ Context) error {
	w.Raw(u.Payload)
	return nil
}
