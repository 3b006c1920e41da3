package reactor

// Envelope is a message in flight between two reactors: the (sender,
// receiver, payload) triple of spec.md §3. Only external traffic — the
// kind the broker routes — travels as an Envelope; internal traffic stays
// inside one reactor's operation queue (driver.go).
type Envelope struct {
	Sender   ID
	Receiver ID
	Msg      Message
}
