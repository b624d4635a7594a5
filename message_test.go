package nostrmux

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseIncoming_Event(t *testing.T) {
	raw := `["EVENT","sub:0",{"id":"abc","pubkey":"def","created_at":1700000000,"kind":1,"tags":[["e","123"]],"content":"hi","sig":"00"}]`
	msg, err := parseIncoming([]byte(raw))
	if err != nil {
		t.Fatalf("parseIncoming() error: %v", err)
	}
	if msg.Type != labelEvent || msg.SubID != "sub:0" {
		t.Errorf("type/subID = %s/%s, want EVENT/sub:0", msg.Type, msg.SubID)
	}
	if msg.Event == nil || msg.Event.ID != "abc" || msg.Event.Kind != 1 || msg.Event.Content != "hi" {
		t.Errorf("event = %+v, want id=abc kind=1 content=hi", msg.Event)
	}
	if len(msg.Event.Tags) != 1 || msg.Event.Tags[0][0] != "e" {
		t.Errorf("tags = %v, want [[e 123]]", msg.Event.Tags)
	}
}

func TestParseIncoming_Eose(t *testing.T) {
	msg, err := parseIncoming([]byte(`["EOSE","sub:3"]`))
	if err != nil {
		t.Fatalf("parseIncoming() error: %v", err)
	}
	if msg.Type != labelEOSE || msg.SubID != "sub:3" {
		t.Errorf("type/subID = %s/%s, want EOSE/sub:3", msg.Type, msg.SubID)
	}
}

func TestParseIncoming_Ok(t *testing.T) {
	msg, err := parseIncoming([]byte(`["OK","eventid",false,"blocked: spam"]`))
	if err != nil {
		t.Fatalf("parseIncoming() error: %v", err)
	}
	if msg.EventID != "eventid" || msg.Accepted || msg.Notice != "blocked: spam" {
		t.Errorf("ok = %+v, want eventid/false/blocked: spam", msg)
	}
}

func TestParseIncoming_OkWithoutMessage(t *testing.T) {
	msg, err := parseIncoming([]byte(`["OK","eventid",true]`))
	if err != nil {
		t.Fatalf("parseIncoming() error: %v", err)
	}
	if !msg.Accepted || msg.Notice != "" {
		t.Errorf("ok = %+v, want accepted with empty message", msg)
	}
}

func TestParseIncoming_NoticeAuthClosed(t *testing.T) {
	msg, err := parseIncoming([]byte(`["NOTICE","slow down"]`))
	if err != nil || msg.Notice != "slow down" {
		t.Fatalf("notice = %+v err=%v", msg, err)
	}

	msg, err = parseIncoming([]byte(`["AUTH","challenge-string"]`))
	if err != nil || msg.Challenge != "challenge-string" {
		t.Fatalf("auth = %+v err=%v", msg, err)
	}

	msg, err = parseIncoming([]byte(`["CLOSED","sub:1","rate limited"]`))
	if err != nil || msg.SubID != "sub:1" || msg.Notice != "rate limited" {
		t.Fatalf("closed = %+v err=%v", msg, err)
	}
}

func TestParseIncoming_Malformed(t *testing.T) {
	cases := []string{
		`{"not":"an array"}`,
		`[]`,
		`["UNKNOWN","x"]`,
		`["EVENT","sub:0"]`,
		`["EOSE"]`,
		`["OK","id"]`,
		`not json at all`,
	}
	for _, raw := range cases {
		if _, err := parseIncoming([]byte(raw)); err == nil {
			t.Errorf("parseIncoming(%q) should error", raw)
		}
	}
}

func TestNewReqFrame(t *testing.T) {
	frame, err := newReqFrame("sub:0", []Filter{{Kinds: []int{0}, Limit: 5}})
	if err != nil {
		t.Fatalf("newReqFrame() error: %v", err)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(frame, &elems); err != nil {
		t.Fatalf("frame is not a JSON array: %v", err)
	}
	if len(elems) != 3 {
		t.Fatalf("frame has %d elements, want 3", len(elems))
	}
	if string(elems[0]) != `"REQ"` || string(elems[1]) != `"sub:0"` {
		t.Errorf("frame prefix = %s %s, want \"REQ\" \"sub:0\"", elems[0], elems[1])
	}

	var f Filter
	if err := json.Unmarshal(elems[2], &f); err != nil {
		t.Fatalf("filter decode: %v", err)
	}
	if len(f.Kinds) != 1 || f.Kinds[0] != 0 || f.Limit != 5 {
		t.Errorf("filter = %+v, want kinds [0] limit 5", f)
	}
}

func TestFilter_MarshalTagFilters(t *testing.T) {
	f := Filter{
		Authors: []string{"pub"},
		Tags:    map[string][]string{"#e": {"id1"}, "p": {"id2"}},
	}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal filter: %v", err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("filter is not an object: %v", err)
	}
	if _, ok := obj["#e"]; !ok {
		t.Error("marshaled filter missing #e key")
	}
	if _, ok := obj["#p"]; !ok {
		t.Error("marshaled filter should prefix bare tag keys with #")
	}
	if _, ok := obj["limit"]; ok {
		t.Error("zero limit should be omitted")
	}
}

func TestFilter_UnmarshalRoundTrip(t *testing.T) {
	raw := `{"kinds":[0,1],"authors":["a"],"since":100,"until":200,"limit":7,"#t":["nostr"]}`
	var f Filter
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatalf("unmarshal filter: %v", err)
	}
	if len(f.Kinds) != 2 || f.Since != 100 || f.Until != 200 || f.Limit != 7 {
		t.Errorf("filter = %+v", f)
	}
	if got := f.Tags["#t"]; len(got) != 1 || got[0] != "nostr" {
		t.Errorf("tag filter = %v, want [nostr]", got)
	}
}

func TestMarshalFrame_NoHTMLEscaping(t *testing.T) {
	frame, err := newEventFrame(&Event{Content: "a <b> & c", Tags: [][]string{}})
	if err != nil {
		t.Fatalf("newEventFrame() error: %v", err)
	}
	if strings.Contains(string(frame), `\u003c`) || !strings.Contains(string(frame), "<b>") {
		t.Errorf("frame %s should not HTML-escape content", frame)
	}
}

func TestGenerateID_Unique(t *testing.T) {
	if generateID() == generateID() {
		t.Error("generateID() returned duplicates")
	}
}
