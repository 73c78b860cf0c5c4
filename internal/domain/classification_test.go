package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIssueType(t *testing.T) {
	for _, v := range IssueTypes {
		got, err := ParseIssueType(string(v))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	_, err := ParseIssueType("Billing")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestParseEnums_RejectFreeText(t *testing.T) {
	_, err := ParsePriority("critical")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ParseSentiment("angry")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ParseRole("bot")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ParseResolutionType("refund")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTicketClassification_Tags(t *testing.T) {
	c := TicketClassification{IssueType: IssueBilling, Priority: PriorityHigh, Sentiment: SentimentFrustrated, Summary: "refund"}
	require.Equal(t, "billing, high, frustrated", c.Tags())
}

func TestTicketClassification_Validate(t *testing.T) {
	ok := TicketClassification{IssueType: IssueGeneral, Priority: PriorityLow, Sentiment: SentimentNeutral, Summary: "question"}
	require.NoError(t, ok.Validate())

	noSummary := ok
	noSummary.Summary = "  "
	require.ErrorIs(t, noSummary.Validate(), ErrInvalidArgument)

	badPriority := ok
	badPriority.Priority = "p1"
	require.ErrorIs(t, badPriority.Validate(), ErrInvalidArgument)
}

func TestParseSubscriptionAction(t *testing.T) {
	a, err := ParseSubscriptionAction(" Cancel ")
	require.NoError(t, err)
	require.Equal(t, ActionCancel, a)
	require.Equal(t, SubscriptionCancelled, a.Target())
	require.Equal(t, SubscriptionPaused, ActionPause.Target())

	_, err = ParseSubscriptionAction("freeze")
	require.ErrorIs(t, err, ErrInvalidAction)
	require.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestRefinedErrorsWrapTaxonomy(t *testing.T) {
	require.ErrorIs(t, ErrAlreadyCancelled, ErrInvalidState)
	require.ErrorIs(t, ErrAlreadyInState, ErrInvalidState)
	require.NotErrorIs(t, ErrAlreadyCancelled, ErrAlreadyInState)
}
