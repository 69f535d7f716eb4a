package model

// NoteKind discriminates originator notifications.
type NoteKind uint8

const (
	NOTE_FILL NoteKind = iota
	NOTE_REST          // ack: residual is resting on the book
	NOTE_CANCEL_OK
	NOTE_CANCEL_REJECT
	NOTE_LOST
)

func (k NoteKind) String() string {
	switch k {
	case NOTE_FILL:
		return "fill"
	case NOTE_REST:
		return "rest"
	case NOTE_CANCEL_OK:
		return "cancel_ok"
	case NOTE_CANCEL_REJECT:
		return "cancel_reject"
	case NOTE_LOST:
		return "lost"
	}
	return "unknown"
}

// Note is an asynchronous notification delivered to an originator at the
// virtual time the triggering event was processed. Lost-in-transit and
// rejected cancels are expected outcomes, not errors.
type Note struct {
	Kind    NoteKind
	Time    Time
	OrderID OrderID
	Fill    *Fill    // NOTE_FILL
	Qty     Quantity // NOTE_FILL: quantity filled for this originator's order
	Reason  string   // NOTE_CANCEL_REJECT
}
