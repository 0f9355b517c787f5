package httpapi

import (
	"encoding/json"
	"testing"

	"github.com/user/chatpane/internal/types"
)

func TestFlexStringAcceptsNumbersAndStrings(t *testing.T) {
	var got struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C flexString `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"x1","b":42,"c":null}`), &got); err != nil {
		t.Fatal(err)
	}
	if got.A != "x1" || got.B != "42" || got.C != "" {
		t.Errorf("unexpected decode: %+v", got)
	}
}

func TestSortByMessageIDNumeric(t *testing.T) {
	entries := []historyEntry{
		{MessageID: "10", Content: "c"},
		{MessageID: "2", Content: "b"},
		{MessageID: "1", Content: "a"},
	}
	sortByMessageID(entries)
	for i, want := range []string{"a", "b", "c"} {
		if entries[i].Content != want {
			t.Errorf("position %d: expected %q, got %q", i, want, entries[i].Content)
		}
	}
}

func TestSenderFromAU(t *testing.T) {
	cases := map[string]types.Sender{
		"U":    types.SenderUser,
		"user": types.SenderUser,
		"A":    types.SenderAI,
		"":     types.SenderAI,
	}
	for in, want := range cases {
		if got := senderFromAU(in); got != want {
			t.Errorf("%q: expected %s, got %s", in, want, got)
		}
	}
}
