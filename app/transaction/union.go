package transaction

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// placeholderID satisfies the schema's id requirement during validation.
const placeholderID = "pending-commit"

var kinds = []Kind{
	KindTrade,
	KindSigning,
	KindDraft,
	KindRelease,
	KindExtension,
	KindHire,
	KindFire,
	KindPromotion,
}

var registry = map[Kind]func() Candidate{
	KindTrade:     func() Candidate { return &Trade{} },
	KindSigning:   func() Candidate { return &Signing{} },
	KindDraft:     func() Candidate { return &Draft{} },
	KindRelease:   func() Candidate { return &Release{} },
	KindExtension: func() Candidate { return &Extension{} },
	KindHire:      func() Candidate { return &Hire{} },
	KindFire:      func() Candidate { return &Fire{} },
	KindPromotion: func() Candidate { return &Promotion{} },
}

// Kinds returns every transaction kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

func (k Kind) Valid() bool {
	_, ok := registry[k]
	return ok
}

// New returns an empty candidate of the given kind.
func New(k Kind) (Candidate, error) {
	newFn, ok := registry[k]
	if !ok {
		return nil, eris.Errorf("transaction: unknown type %q", k)
	}
	c := newFn()
	c.base().Type = k
	return c, nil
}

// Decode strictly decodes one JSON object into the candidate selected by its
// "type" field. Unknown fields and trailing data are errors. The result is
// not validated.
func Decode(raw []byte) (Candidate, error) {
	var probe struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, eris.Wrap(err, "transaction: decode type")
	}

	newFn, ok := registry[probe.Type]
	if !ok {
		return nil, eris.Errorf("transaction: unknown type %q", probe.Type)
	}
	c := newFn()

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return nil, eris.Wrapf(err, "transaction: decode %s", probe.Type)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, eris.Errorf("transaction: trailing data after %s object", probe.Type)
	}

	return c, nil
}

// Check validates a candidate the way the schema requires: the placeholder id
// is injected for validation and removed again before returning.
func Check(c Candidate) error {
	if c == nil {
		return eris.New("transaction: nil candidate")
	}
	b := c.base()
	b.ID = placeholderID
	defer func() { b.ID = "" }()

	return Validate(c)
}

// Encode renders the candidate's canonical JSON without an id.
func Encode(c Candidate) ([]byte, error) {
	if c.base().ID != "" {
		return nil, eris.New("transaction: candidate must not carry an id")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, eris.Wrapf(err, "transaction: encode %s", c.Kind())
	}
	return data, nil
}
