package model

import (
	"bytes"
	"encoding/json"
)

// EncodingKind tags which upstream shape a LevelEncoding was decoded from.
type EncodingKind uint8

const (
	// EncodingAbsent means the field was missing or null.
	EncodingAbsent EncodingKind = iota
	// EncodingSequence is a JSON array where index i holds ordinal i+1.
	EncodingSequence
	// EncodingKeyed is a JSON object keyed by 0-based ordinals as strings.
	EncodingKeyed
	// EncodingInvalid is any other JSON value.
	EncodingInvalid
)

func (k EncodingKind) String() string {
	switch k {
	case EncodingAbsent:
		return "absent"
	case EncodingSequence:
		return "sequence"
	case EncodingKeyed:
		return "keyed"
	case EncodingInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// LevelEncoding holds the per-slot levels of masteries or modules in whichever
// of the two upstream shapes the store returned.
type LevelEncoding struct {
	Kind     EncodingKind
	Sequence []*int
	Keyed    map[string]*int
	// Raw keeps the undecodable payload for diagnostics when Kind is EncodingInvalid.
	Raw json.RawMessage
}

// SequenceOf builds a sequence encoding. Nil entries model JSON nulls.
func SequenceOf(levels ...*int) LevelEncoding {
	return LevelEncoding{Kind: EncodingSequence, Sequence: levels}
}

// KeyedOf builds a keyed encoding.
func KeyedOf(levels map[string]*int) LevelEncoding {
	return LevelEncoding{Kind: EncodingKeyed, Keyed: levels}
}

// Present reports whether the field carried any data at all.
func (e LevelEncoding) Present() bool {
	return e.Kind != EncodingAbsent
}

// UnmarshalJSON never fails on an unexpected shape; it records it as
// EncodingInvalid so that one bad entry does not spoil a whole roster.
func (e *LevelEncoding) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*e = LevelEncoding{}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '[':
		var seq []*int
		if err := json.Unmarshal(trimmed, &seq); err == nil {
			e.Kind = EncodingSequence
			e.Sequence = seq
			return nil
		}
	case '{':
		var keyed map[string]*int
		if err := json.Unmarshal(trimmed, &keyed); err == nil {
			e.Kind = EncodingKeyed
			e.Keyed = keyed
			return nil
		}
	}
	e.Kind = EncodingInvalid
	e.Raw = append(json.RawMessage(nil), trimmed...)
	return nil
}

// MarshalJSON writes the encoding back in its original shape.
func (e LevelEncoding) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EncodingSequence:
		return json.Marshal(e.Sequence)
	case EncodingKeyed:
		return json.Marshal(e.Keyed)
	case EncodingInvalid:
		return e.Raw, nil
	default:
		return []byte("null"), nil
	}
}

// Progress is one roster entry as stored upstream. Pointer fields are nil
// when the store omitted them.
type Progress struct {
	ID         string        `json:"id,omitempty"`
	Owned      bool          `json:"owned"`
	Rarity     *int          `json:"rarity,omitempty"`
	Promotion  *int          `json:"promotion,omitempty"`
	Level      *int          `json:"level,omitempty"`
	Potential  *int          `json:"potential,omitempty"`
	SkillLevel *int          `json:"skillLevel,omitempty"`
	Mastery    LevelEncoding `json:"mastery"`
	Module     LevelEncoding `json:"module"`

	// DecodeErr is set when the entry could not be decoded at all; the
	// other fields are then zero.
	DecodeErr error `json:"-"`
}

// Roster maps operator id to that account's progress entry.
type Roster map[string]Progress

// UnmarshalJSON decodes each entry on its own so one mistyped record does
// not lose the rest of the roster. Failed entries keep their DecodeErr.
func (r *Roster) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*r = nil
		return nil
	}
	out := make(Roster, len(raw))
	for id, entry := range raw {
		var p Progress
		if err := json.Unmarshal(entry, &p); err != nil {
			p = Progress{DecodeErr: err}
		}
		out[id] = p
	}
	*r = out
	return nil
}

// IntPtr is a small helper for building optional numeric fields.
func IntPtr(v int) *int { return &v }

// IntOr dereferences p, returning def when p is nil.
func IntOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
