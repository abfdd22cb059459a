package assistant

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantText    string
		wantCards   int
		wantSuggest int
	}{
		{
			name:     "plain text",
			content:  "  You are free after 3pm.  ",
			wantText: "You are free after 3pm.",
		},
		{
			name:        "object",
			content:     `{"text":"Done","cards":[{"type":"summary","title":"Day","content":"Two meetings","action":""}],"suggestions":["Draft a reply"]}`,
			wantText:    "Done",
			wantCards:   1,
			wantSuggest: 1,
		},
		{
			name:      "fenced object",
			content:   "```json\n{\"text\":\"Fenced\",\"cards\":[{\"type\":\"calendar\",\"title\":\"Standup\",\"content\":\"9:00\",\"action\":\"open\"}],\"suggestions\":[]}\n```",
			wantText:  "Fenced",
			wantCards: 1,
		},
		{
			name:     "object without text is plain",
			content:  `{"cards":[{"type":"task","title":"a","content":"b"}]}`,
			wantText: `{"cards":[{"type":"task","title":"a","content":"b"}]}`,
		},
		{
			name:     "broken json is plain",
			content:  `{"text":"half`,
			wantText: `{"text":"half`,
		},
		{
			name:     "invalid cards dropped",
			content:  `{"text":"t","cards":[{"type":"banner","title":"a","content":"b"},{"type":"task","title":" ","content":"b"},{"type":"draft","title":"a","content":""}],"suggestions":[]}`,
			wantText: "t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, cards, suggestions := parseReply(tt.content)
			if text != tt.wantText {
				t.Fatalf("text = %q, want %q", text, tt.wantText)
			}
			if cards == nil || len(cards) != tt.wantCards {
				t.Fatalf("cards = %+v, want %d", cards, tt.wantCards)
			}
			if suggestions == nil || len(suggestions) != tt.wantSuggest {
				t.Fatalf("suggestions = %v, want %d", suggestions, tt.wantSuggest)
			}
		})
	}
}

func TestReplySchema_StrictObject(t *testing.T) {
	data, err := json.Marshal(replySchema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"additionalProperties":false`, `"suggestions"`, `"enum":["summary","draft","task","calendar"]`} {
		if !strings.Contains(s, want) {
			t.Fatalf("schema %s missing %s", s, want)
		}
	}
	if strings.Contains(s, `"$schema"`) || strings.Contains(s, `"$ref"`) {
		t.Fatalf("schema should be inline without $schema: %s", s)
	}
}
