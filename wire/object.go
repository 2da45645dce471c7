package wire

import "github.com/tinylib/msgp/msgp"

// PushObject serializes v into s. Types implementing Object use their own
// hand-written codec; everything else falls back to msgp, the
// trivially-copyable-type escape hatch spec.md's design notes call for so
// ordinary structs don't need a hand-rolled MarshalBinStream.
func PushObject(s *BinStream, v any) {
	if o, ok := v.(Object); ok {
		o.MarshalBinStream(s)
		return
	}
	m, ok := v.(msgp.Marshaler)
	if !ok {
		panic("wire: value has neither MarshalBinStream nor msgp.Marshaler")
	}
	b, err := m.MarshalMsg(nil)
	if err != nil {
		panic("wire: msgp marshal: " + err.Error())
	}
	s.PushByteSlice(b)
}

// PopObject deserializes into v, the mirror of PushObject.
func PopObject(s *BinStream, v any) {
	if o, ok := v.(Object); ok {
		o.UnmarshalBinStream(s)
		return
	}
	u, ok := v.(msgp.Unmarshaler)
	if !ok {
		panic("wire: value has neither UnmarshalBinStream nor msgp.Unmarshaler")
	}
	b := s.PopByteSlice()
	if _, err := u.UnmarshalMsg(b); err != nil {
		panic("wire: msgp unmarshal: " + err.Error())
	}
}
