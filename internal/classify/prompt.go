package classify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"support-router/internal/domain"
)

var systemPrompt = strings.Join([]string{
	"Role:",
	"You are a ticket classification engine for CultPass, a cultural experiences subscription service.",
	"",
	"Definitions:",
	"- issue_type: account (login, password, profile, blocked), subscription (plan changes, pause, cancel, upgrade),",
	"  reservation (booking, events, experiences, spots), billing (refund, payment, charges, invoices),",
	"  technical (app bugs, crashes, QR codes, errors), general (anything else)",
	"- priority: urgent (safety, legal, immediate), high (service blocked, refund needed, access lost),",
	"  medium (standard request), low (informational question, how-to)",
	"- sentiment: frustrated (anger, exclamation, threats), negative (dissatisfaction, complaint),",
	"  positive (gratitude, praise), neutral (factual)",
	"- requires_human: true when the customer asks for a human or manager, mentions legal action or",
	"  discrimination, or is frustrated with urgent or high priority",
	"- summary: one concise sentence describing what the customer needs",
	"",
	"Output Contract:",
	"Return JSON only with keys issue_type, priority, sentiment, requires_human and summary.",
	"Use exactly the literal values listed above.",
}, "\n")

// schema is the strict json_schema for backends that support constrained output.
var schema = json.RawMessage(fmt.Sprintf(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["issue_type", "priority", "sentiment", "requires_human", "summary"],
  "properties": {
    "issue_type": {"type": "string", "enum": %s},
    "priority": {"type": "string", "enum": %s},
    "sentiment": {"type": "string", "enum": %s},
    "requires_human": {"type": "boolean"},
    "summary": {"type": "string"}
  }
}`, enumJSON(domain.IssueTypes), enumJSON(domain.Priorities), enumJSON(domain.Sentiments)))

func enumJSON[T ~string](values []T) string {
	raw, _ := json.Marshal(values)
	return string(raw)
}

func userPrompt(message string) string {
	return "Customer message:\n" + strings.TrimSpace(message)
}

func parseClassification(raw string) (domain.TicketClassification, error) {
	var out domain.TicketClassification
	dec := json.NewDecoder(bytes.NewBufferString(stripFence(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return domain.TicketClassification{}, fmt.Errorf("classify: decode classification: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return domain.TicketClassification{}, errors.New("classify: decode classification: multiple JSON values")
		}
		return domain.TicketClassification{}, fmt.Errorf("classify: decode classification trailing data: %w", err)
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if err := out.Validate(); err != nil {
		return domain.TicketClassification{}, fmt.Errorf("classify: %w", err)
	}
	return out, nil
}

// stripFence removes a surrounding markdown code fence.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
