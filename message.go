package nostrmux

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
)

// Message labels defined by the Nostr wire protocol.
const (
	labelEvent  = "EVENT"
	labelReq    = "REQ"
	labelClose  = "CLOSE"
	labelEOSE   = "EOSE"
	labelOK     = "OK"
	labelNotice = "NOTICE"
	labelAuth   = "AUTH"
	labelClosed = "CLOSED"
)

// Event is a signed Nostr event as it travels on the wire.
type Event struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// EventParams is the unsigned portion of an event handed to a Signer.
// CreatedAt of zero means "now"; nil Tags marshal as an empty list.
type EventParams struct {
	Kind      int
	Content   string
	Tags      [][]string
	CreatedAt int64
}

// Filter selects events by id, author, kind, tag, time range, or count
// limit. Tag filters use keys like "#e" or "#p" in the Tags map; a missing
// leading '#' is added on marshal.
type Filter struct {
	IDs     []string
	Kinds   []int
	Authors []string
	Since   int64
	Until   int64
	Limit   int
	Tags    map[string][]string
}

// MarshalJSON flattens tag filters into the top-level object, as the wire
// format requires.
func (f Filter) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, 6+len(f.Tags))
	if len(f.IDs) > 0 {
		obj["ids"] = f.IDs
	}
	if len(f.Kinds) > 0 {
		obj["kinds"] = f.Kinds
	}
	if len(f.Authors) > 0 {
		obj["authors"] = f.Authors
	}
	if f.Since > 0 {
		obj["since"] = f.Since
	}
	if f.Until > 0 {
		obj["until"] = f.Until
	}
	if f.Limit > 0 {
		obj["limit"] = f.Limit
	}
	for k, v := range f.Tags {
		if len(k) == 0 {
			continue
		}
		if k[0] != '#' {
			k = "#" + k
		}
		obj[k] = v
	}
	return json.Marshal(obj)
}

// UnmarshalJSON is the inverse of MarshalJSON; unknown non-tag keys are
// ignored.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*f = Filter{}
	for k, raw := range obj {
		var err error
		switch {
		case k == "ids":
			err = json.Unmarshal(raw, &f.IDs)
		case k == "kinds":
			err = json.Unmarshal(raw, &f.Kinds)
		case k == "authors":
			err = json.Unmarshal(raw, &f.Authors)
		case k == "since":
			err = json.Unmarshal(raw, &f.Since)
		case k == "until":
			err = json.Unmarshal(raw, &f.Until)
		case k == "limit":
			err = json.Unmarshal(raw, &f.Limit)
		case len(k) > 1 && k[0] == '#':
			var vals []string
			if err = json.Unmarshal(raw, &vals); err == nil {
				if f.Tags == nil {
					f.Tags = make(map[string][]string)
				}
				f.Tags[k] = vals
			}
		}
		if err != nil {
			return errors.Wrapf(err, "filter field %q", k)
		}
	}
	return nil
}

// IncomingMessage is a parsed relay→client frame. Type is one of the
// label constants; only the fields for that type are populated.
type IncomingMessage struct {
	Type      string
	SubID     string // EVENT, EOSE, CLOSED
	Event     *Event // EVENT
	EventID   string // OK
	Accepted  bool   // OK
	Notice    string // NOTICE, and the optional OK / CLOSED message
	Challenge string // AUTH
	Raw       json.RawMessage
}

// parseIncoming decodes a relay frame. Frames that are not JSON arrays,
// have an unknown label, or are missing required elements return an error;
// the transport suppresses such frames.
func parseIncoming(data []byte) (*IncomingMessage, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	if len(elems) == 0 {
		return nil, errors.New("empty frame")
	}

	var label string
	if err := json.Unmarshal(elems[0], &label); err != nil {
		return nil, errors.Wrap(err, "decode frame label")
	}

	msg := &IncomingMessage{Type: label, Raw: data}
	switch label {
	case labelEvent:
		if len(elems) < 3 {
			return nil, errors.Errorf("EVENT frame has %d elements", len(elems))
		}
		if err := json.Unmarshal(elems[1], &msg.SubID); err != nil {
			return nil, errors.Wrap(err, "EVENT subscription id")
		}
		msg.Event = &Event{}
		if err := json.Unmarshal(elems[2], msg.Event); err != nil {
			return nil, errors.Wrap(err, "EVENT payload")
		}
	case labelEOSE:
		if len(elems) < 2 {
			return nil, errors.New("EOSE frame missing subscription id")
		}
		if err := json.Unmarshal(elems[1], &msg.SubID); err != nil {
			return nil, errors.Wrap(err, "EOSE subscription id")
		}
	case labelOK:
		if len(elems) < 3 {
			return nil, errors.Errorf("OK frame has %d elements", len(elems))
		}
		if err := json.Unmarshal(elems[1], &msg.EventID); err != nil {
			return nil, errors.Wrap(err, "OK event id")
		}
		if err := json.Unmarshal(elems[2], &msg.Accepted); err != nil {
			return nil, errors.Wrap(err, "OK accepted flag")
		}
		if len(elems) > 3 {
			_ = json.Unmarshal(elems[3], &msg.Notice)
		}
	case labelNotice:
		if len(elems) < 2 {
			return nil, errors.New("NOTICE frame missing message")
		}
		if err := json.Unmarshal(elems[1], &msg.Notice); err != nil {
			return nil, errors.Wrap(err, "NOTICE message")
		}
	case labelAuth:
		if len(elems) < 2 {
			return nil, errors.New("AUTH frame missing challenge")
		}
		if err := json.Unmarshal(elems[1], &msg.Challenge); err != nil {
			return nil, errors.Wrap(err, "AUTH challenge")
		}
	case labelClosed:
		if len(elems) < 2 {
			return nil, errors.New("CLOSED frame missing subscription id")
		}
		if err := json.Unmarshal(elems[1], &msg.SubID); err != nil {
			return nil, errors.Wrap(err, "CLOSED subscription id")
		}
		if len(elems) > 2 {
			_ = json.Unmarshal(elems[2], &msg.Notice)
		}
	default:
		return nil, errors.Errorf("unknown frame label %q", label)
	}
	return msg, nil
}

// marshalFrame serializes a client→relay frame as a single JSON array.
// HTML escaping is disabled so content bytes survive round-trips intact.
func marshalFrame(elems ...any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(elems); err != nil {
		return nil, errors.Wrap(err, "encode frame")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func newReqFrame(subID string, filters []Filter) ([]byte, error) {
	elems := make([]any, 0, 2+len(filters))
	elems = append(elems, labelReq, subID)
	for _, f := range filters {
		elems = append(elems, f)
	}
	return marshalFrame(elems...)
}

func newCloseFrame(subID string) ([]byte, error) {
	return marshalFrame(labelClose, subID)
}

func newEventFrame(ev *Event) ([]byte, error) {
	return marshalFrame(labelEvent, ev)
}

func newAuthFrame(ev *Event) ([]byte, error) {
	return marshalFrame(labelAuth, ev)
}

// generateID returns a new unique request ID.
func generateID() string {
	return uuid.New().String()
}
