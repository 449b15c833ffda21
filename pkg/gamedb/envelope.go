package gamedb

// MaterialGrant is an amount of one crafting material.
type MaterialGrant struct {
	Type   string
	Amount int
}

// Envelope is one recipient's pending delivery of a messenger.
// Only the first recipient of a send carries a Delivery object.
type Envelope struct {
	MsgID       uint64
	Delivery    DBRef // Physical cargo object, Nothing if none
	Money       int64
	Materials   *MaterialGrant
	Courier     string // In-fiction courier display name
	ForwardedBy DBRef  // Nothing unless forwarded
}

// HasCargo reports whether the envelope carries anything besides text.
func (e Envelope) HasCargo() bool {
	return e.Delivery != Nothing || e.Money > 0 || (e.Materials != nil && e.Materials.Amount > 0)
}

// StripDelivery returns a copy of the envelope without the cargo object.
func (e Envelope) StripDelivery() Envelope {
	e.Delivery = Nothing
	if e.Materials != nil {
		m := *e.Materials
		e.Materials = &m
	}
	return e
}
