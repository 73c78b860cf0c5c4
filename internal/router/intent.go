package router

import (
	"regexp"
	"strings"

	"support-router/internal/domain"
)

var (
	emailPattern       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	reservationPattern = regexp.MustCompile(`(?i)\b(?:reservation|booking)\s*(?:id|number|#|no\.?)?\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9\-]*)`)

	cancelSubscription = regexp.MustCompile(`(?i)\b(cancel|terminate)\b[^.?!]{0,40}\b(subscription|plan|membership)\b|\b(end|stop|close)\s+my\s+(subscription|plan|membership)\b`)
	pauseSubscription  = regexp.MustCompile(`(?i)\b(pause|suspend)\b[^.?!]{0,40}\b(subscription|plan|membership)\b|\b(subscription|plan|membership)\b[^.?!]{0,20}\bon hold\b`)
	cancelReservation  = regexp.MustCompile(`(?i)\bcancel\b[^.?!]{0,40}\b(reservation|booking|spot|event|experience)\b`)
	refundRequest      = regexp.MustCompile(`(?i)\brefund (me|my|it|this|that)\b|\b(want|get|need|request|issue|process|give)\b[^.?!]{0,20}\brefund\b|\bmoney back\b|\breimburse`)
	refundPolicy       = regexp.MustCompile(`(?i)\brefund polic(y|ies)\b`)
	personalRefund     = regexp.MustCompile(`(?i)\b(refund me|my refund|money back|reimburse me)\b`)

	// A write is only read from a clause framed as a request.
	clausePattern = regexp.MustCompile(`[^.?!;\n]+[.?!;\n]*`)
	requestFrame  = regexp.MustCompile(`(?i)\b(please|pls|i want|i wanna|i need|i'd like|i would like|i wish|help me|go ahead)\b`)
	politeAsk     = regexp.MustCompile(`(?i)^((hi|hello|hey|ok|okay|yes|yeah)\W+)?(please\s+)?((can|could)\s+(you|i|we)|(would|will)\s+you|may\s+i)\b`)
	imperative    = regexp.MustCompile(`(?i)^((hi|hello|hey|ok|okay|yes|yeah)\W+)?(please\s+)?(cancel|terminate|pause|suspend|stop|end|close|refund|put|process|issue|give|reimburse)\b`)
	questionStart = regexp.MustCompile(`(?i)^(when|what|how|why|where|which|who|is|are|was|were|am|do|does|did|should|shall|will|would|has|have|if|whether)\b`)
	hypothetical  = regexp.MustCompile(`(?i)\b(if|whether|in case|know|wonder|wondering|curious|asking|understand)\b`)

	languagePattern = regexp.MustCompile(`(?i)\b(?:in|speak|prefer)\s+(portuguese|english|spanish)\b`)
	contactPattern  = regexp.MustCompile(`(?i)\b(?:contact|reach|call|text|message)\s+me\s+(?:by|via|on|through)\s+(email|phone|sms|whatsapp)\b`)
)

var languageCodes = map[string]string{
	"portuguese": "pt-BR",
	"english":    "en-US",
	"spanish":    "es-ES",
}

// DetectIntent reads identity and requested actions from the current message.
// Identity falls back to earlier customer messages. A message that only
// supplies identity inherits the write request of the previous message.
func DetectIntent(message string, earlier []string) domain.Intent {
	in := parseMessage(message)
	for i := len(earlier) - 1; i >= 0 && in.Email == ""; i-- {
		in.Email = ExtractEmail(earlier[i])
	}
	if !in.Write() && len(earlier) > 0 && ExtractEmail(message) != "" {
		prev := parseMessage(earlier[len(earlier)-1])
		in.CancelReservation = prev.CancelReservation
		in.Refund = prev.Refund
		in.SubscriptionAction = prev.SubscriptionAction
		if in.ReservationID == "" {
			in.ReservationID = prev.ReservationID
		}
	}
	return in
}

func parseMessage(message string) domain.Intent {
	in := domain.Intent{
		Email:         ExtractEmail(message),
		ReservationID: ExtractReservationID(message),
	}
	for _, c := range splitClauses(message) {
		in.Refund = in.Refund || isRefundRequest(c)
		if in.SubscriptionAction != "" || in.CancelReservation {
			continue
		}
		switch {
		case c.requests(cancelSubscription):
			in.SubscriptionAction = domain.ActionCancel
		case c.requests(pauseSubscription):
			in.SubscriptionAction = domain.ActionPause
		case c.requests(cancelReservation):
			in.CancelReservation = true
		}
	}
	if prefs := extractPreferences(message); len(prefs) > 0 {
		in.Preferences = prefs
	}
	return in
}

type clause struct {
	text     string
	question bool
}

func splitClauses(message string) []clause {
	var out []clause
	for _, raw := range clausePattern.FindAllString(message, -1) {
		text := strings.TrimSpace(strings.TrimRight(raw, ".?!;\n"))
		if text == "" {
			continue
		}
		out = append(out, clause{text: text, question: strings.Contains(raw, "?")})
	}
	return out
}

// requests reports whether the clause asks for the action matched by p.
// Status questions, hypotheticals and bare statements do not.
func (c clause) requests(p *regexp.Regexp) bool {
	loc := p.FindStringIndex(c.text)
	if loc == nil || hypothetical.MatchString(c.text[:loc[0]]) {
		return false
	}
	if politeAsk.MatchString(c.text) || imperative.MatchString(c.text) {
		return true
	}
	if c.question || questionStart.MatchString(c.text) {
		return false
	}
	return requestFrame.MatchString(c.text)
}

// isRefundRequest separates "refund me" from questions about the policy.
func isRefundRequest(c clause) bool {
	if !c.requests(refundRequest) {
		return false
	}
	return !refundPolicy.MatchString(c.text) || personalRefund.MatchString(c.text)
}

// ExtractEmail returns the first email address in s, lowercased.
func ExtractEmail(s string) string {
	return strings.ToLower(emailPattern.FindString(s))
}

// ExtractReservationID returns an id following "reservation" or "booking".
// Candidates without a digit are ordinary words and are ignored.
func ExtractReservationID(s string) string {
	for _, m := range reservationPattern.FindAllStringSubmatch(s, -1) {
		if strings.ContainsAny(m[1], "0123456789") {
			return m[1]
		}
	}
	return ""
}

func extractPreferences(s string) map[string]string {
	prefs := map[string]string{}
	if m := languagePattern.FindStringSubmatch(s); m != nil {
		prefs["language"] = languageCodes[strings.ToLower(m[1])]
	}
	if m := contactPattern.FindStringSubmatch(s); m != nil {
		prefs["contact_method"] = strings.ToLower(m[1])
	}
	return prefs
}
