package domain

import (
	"fmt"
	"strings"
)

type IssueType string

const (
	IssueAccount      IssueType = "account"
	IssueSubscription IssueType = "subscription"
	IssueReservation  IssueType = "reservation"
	IssueBilling      IssueType = "billing"
	IssueTechnical    IssueType = "technical"
	IssueGeneral      IssueType = "general"
)

// IssueTypes lists every issue type in declaration order.
var IssueTypes = []IssueType{IssueAccount, IssueSubscription, IssueReservation, IssueBilling, IssueTechnical, IssueGeneral}

func ParseIssueType(s string) (IssueType, error) {
	for _, v := range IssueTypes {
		if string(v) == s {
			return v, nil
		}
	}
	return "", invalidValue("issue_type", s)
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func ParsePriority(s string) (Priority, error) {
	for _, v := range Priorities {
		if string(v) == s {
			return v, nil
		}
	}
	return "", invalidValue("priority", s)
}

// Elevated reports whether p is high or urgent.
func (p Priority) Elevated() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentNegative   Sentiment = "negative"
	SentimentFrustrated Sentiment = "frustrated"
)

var Sentiments = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative, SentimentFrustrated}

func ParseSentiment(s string) (Sentiment, error) {
	for _, v := range Sentiments {
		if string(v) == s {
			return v, nil
		}
	}
	return "", invalidValue("sentiment", s)
}

// Upset reports whether the customer is negative or frustrated.
func (s Sentiment) Upset() bool {
	return s == SentimentNegative || s == SentimentFrustrated
}

// TicketClassification is the structured triage result for one inbound
// message.
type TicketClassification struct {
	IssueType     IssueType `json:"issue_type"`
	Priority      Priority  `json:"priority"`
	Sentiment     Sentiment `json:"sentiment"`
	RequiresHuman bool      `json:"requires_human"`
	Summary       string    `json:"summary"`
}

// Validate checks every enumerated field and the summary.
func (c TicketClassification) Validate() error {
	if _, err := ParseIssueType(string(c.IssueType)); err != nil {
		return err
	}
	if _, err := ParsePriority(string(c.Priority)); err != nil {
		return err
	}
	if _, err := ParseSentiment(string(c.Sentiment)); err != nil {
		return err
	}
	if strings.TrimSpace(c.Summary) == "" {
		return fmt.Errorf("%w: summary must not be empty", ErrInvalidArgument)
	}
	return nil
}

// Tags returns the ticket tag string in fixed order: issue, priority, sentiment.
func (c TicketClassification) Tags() string {
	return strings.Join([]string{string(c.IssueType), string(c.Priority), string(c.Sentiment)}, ", ")
}
