package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"support-router/internal/domain"
	"support-router/internal/workers"
)

func TestCompose_Escalation(t *testing.T) {
	c := domain.TicketClassification{
		IssueType: domain.IssueBilling, Priority: domain.PriorityUrgent, Sentiment: domain.SentimentFrustrated,
		RequiresHuman: true, Summary: "Customer disputes a double charge.",
	}
	reply := Compose(c, Decide(Input{Classification: c}), nil)

	require.True(t, strings.HasPrefix(reply, acknowledgment))
	require.Contains(t, reply, "human support team")
	require.Contains(t, reply, "Customer disputes a double charge.")
}

func TestCompose_JoinsOutcomes(t *testing.T) {
	c := cls(domain.IssueAccount, domain.PriorityMedium, domain.SentimentPositive)
	p := Decide(Input{Classification: c, HasIdentity: true})
	reply := Compose(c, p, []workers.Outcome{
		{Worker: workers.Account, Text: "Hi Alice, thanks for reaching out."},
		{Worker: workers.Knowledge, Text: "  "},
	})

	require.Equal(t, positiveOpening+"\n\nHi Alice, thanks for reaching out.", reply)
}

func TestCompose_Fallback(t *testing.T) {
	c := cls(domain.IssueGeneral, domain.PriorityLow, domain.SentimentNeutral)
	reply := Compose(c, Decide(Input{Classification: c}), nil)
	require.Equal(t, fallbackReply, reply)
}

func TestCompose_IdentityRequest(t *testing.T) {
	c := cls(domain.IssueSubscription, domain.PriorityMedium, domain.SentimentNeutral)
	p := Decide(Input{Classification: c})
	reply := Compose(c, p, []workers.Outcome{{Worker: workers.Knowledge, Text: "Here is how plans work."}})

	require.Equal(t, "Here is how plans work.\n\n"+identityRequest, reply)
}

func TestCompose_SoftEscalation(t *testing.T) {
	c := cls(domain.IssueGeneral, domain.PriorityHigh, domain.SentimentFrustrated)
	p := Decide(Input{Classification: c})

	reply := Compose(c, p, []workers.Outcome{{Worker: workers.Knowledge, Text: "Try restarting the app."}})
	require.True(t, strings.HasSuffix(reply, softEscalation))

	reply = Compose(c, p, []workers.Outcome{{Worker: workers.Knowledge, Text: "I couldn't find an answer.", NeedsEscalation: true}})
	require.NotContains(t, reply, softEscalation)
}
