package assistant

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

const (
	MaxCards       = 4
	MaxSuggestions = 3

	replySchemaName = "assistant_reply"
)

// Card types the UI knows how to render.
const (
	CardSummary  = "summary"
	CardDraft    = "draft"
	CardTask     = "task"
	CardCalendar = "calendar"
)

// Card is a structured follow-up attached to an assistant reply.
type Card struct {
	Type    string `json:"type" jsonschema:"enum=summary,enum=draft,enum=task,enum=calendar"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Action  string `json:"action" jsonschema:"description=Optional follow-up action label; empty when none"`
}

// reply is the JSON object the chat provider is asked to return.
type reply struct {
	Text        string   `json:"text" jsonschema:"description=The answer shown to the user"`
	Cards       []Card   `json:"cards"`
	Suggestions []string `json:"suggestions" jsonschema:"description=Short follow-up prompts"`
}

var replySchema = generateSchema[reply]()

func generateSchema[T any]() any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	s := r.Reflect(v)
	s.Version = ""
	return s
}

// parseReply extracts text, cards and suggestions from a completion. Content
// that is not a reply object is returned whole as text with no cards; cards
// are never derived from free text.
func parseReply(content string) (string, []Card, []string) {
	var r reply
	if err := json.Unmarshal([]byte(stripFences(content)), &r); err != nil || strings.TrimSpace(r.Text) == "" {
		return strings.TrimSpace(content), []Card{}, []string{}
	}

	cards := make([]Card, 0, MaxCards)
	for _, c := range r.Cards {
		if len(cards) == MaxCards {
			break
		}
		if !validCard(c) {
			continue
		}
		cards = append(cards, Card{
			Type:    c.Type,
			Title:   strings.TrimSpace(c.Title),
			Content: strings.TrimSpace(c.Content),
			Action:  strings.TrimSpace(c.Action),
		})
	}

	suggestions := make([]string, 0, MaxSuggestions)
	for _, s := range r.Suggestions {
		if len(suggestions) == MaxSuggestions {
			break
		}
		if s = strings.TrimSpace(s); s != "" {
			suggestions = append(suggestions, s)
		}
	}
	return strings.TrimSpace(r.Text), cards, suggestions
}

func validCard(c Card) bool {
	switch c.Type {
	case CardSummary, CardDraft, CardTask, CardCalendar:
	default:
		return false
	}
	return strings.TrimSpace(c.Title) != "" && strings.TrimSpace(c.Content) != ""
}

// stripFences removes a surrounding ``` or ```json code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return s
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
