package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"support-router/internal/domain"
	"support-router/internal/session"
)

const (
	skPrefixTurn = "TURN#"
	skMeta       = "META#"
	statusClosed = "complete"
	ttlDuration  = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores session transcripts in a DynamoDB table. It implements
// session.Transcript.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

var _ session.Transcript = (*Client)(nil)

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// turnSK returns the sort key for a turn; RFC3339Nano keeps lexical order
// chronological.
func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(time.RFC3339Nano)
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// Load returns the session's user, turn count and most recent messages in
// chronological order. An unknown session yields an empty snapshot.
func (c *Client) Load(ctx context.Context, sessionID string, limit int) (session.Snapshot, error) {
	meta, err := c.getMeta(ctx, sessionID)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("repository: Load: %w", err)
	}
	turns, err := c.getTurns(ctx, sessionID, limit)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("repository: Load: %w", err)
	}

	msgs := make([]domain.ChatMessage, 0, 2*len(turns))
	for _, t := range turns {
		msgs = append(msgs,
			domain.ChatMessage{Role: string(domain.RoleUser), Content: t.Message},
			domain.ChatMessage{Role: string(domain.RoleAI), Content: t.Reply},
		)
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return session.Snapshot{UserID: meta.UserID, Messages: msgs, Turns: meta.Turns}, nil
}

func (c *Client) getMeta(ctx context.Context, sessionID string) (domain.SessionMeta, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SessionMeta{}, fmt.Errorf("get meta: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.SessionMeta{SessionID: sessionID}, nil
	}
	turns, err := intAttr(out.Item, "turns")
	if err != nil {
		return domain.SessionMeta{}, fmt.Errorf("decode turns: %w", err)
	}
	userID, _ := strAttr(out.Item, "userId") // allow empty
	return domain.SessionMeta{SessionID: sessionID, UserID: userID, Turns: turns}, nil
}

func (c *Client) getTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		// Each turn holds two messages.
		in.Limit = aws.Int32(int32((limit + 1) / 2))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		t, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, t)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// SaveTurn writes the completed turn and the updated metadata in one
// transaction.
func (c *Client) SaveTurn(ctx context.Context, sessionID string, ex session.Exchange, turns int) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("repository: SaveTurn: session id is required")
	}
	turn := c.newTurn(sessionID, ex)
	meta := c.newMeta(sessionID, ex.UserID, turns)

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                turnItem(turn),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      metaItem(meta),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

func (c *Client) newTurn(sessionID string, ex session.Exchange) domain.Turn {
	return domain.Turn{
		PK:        sessionPK(sessionID),
		SK:        turnSK(c.now()),
		SessionID: sessionID,
		Message:   ex.Message,
		Reply:     ex.Reply,
		IssueType: ex.IssueType,
		Status:    statusClosed,
		TTL:       c.ttlValue(),
	}
}

func (c *Client) newMeta(sessionID, userID string, turns int) domain.SessionMeta {
	return domain.SessionMeta{
		PK:           sessionPK(sessionID),
		SK:           skMeta,
		SessionID:    sessionID,
		UserID:       userID,
		LastActivity: c.now().UTC().Format(time.RFC3339),
		Turns:        turns,
		TTL:          c.ttlValue(),
	}
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Turn{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Turn{}, err
	}
	msg, err := strAttr(item, "message")
	if err != nil {
		return domain.Turn{}, err
	}
	reply, _ := strAttr(item, "reply")         // allow empty
	issueType, _ := strAttr(item, "issueType") // allow empty
	status, _ := strAttr(item, "status")       // allow empty

	return domain.Turn{
		PK:        pk,
		SK:        sk,
		Message:   msg,
		Reply:     reply,
		IssueType: issueType,
		Status:    status,
	}, nil
}

func turnItem(t domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: t.PK},
		"SK":        &types.AttributeValueMemberS{Value: t.SK},
		"sessionId": &types.AttributeValueMemberS{Value: t.SessionID},
		"message":   &types.AttributeValueMemberS{Value: t.Message},
		"reply":     &types.AttributeValueMemberS{Value: t.Reply},
		"issueType": &types.AttributeValueMemberS{Value: t.IssueType},
		"status":    &types.AttributeValueMemberS{Value: t.Status},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(t.TTL, 10)},
	}
}

func metaItem(m domain.SessionMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: m.PK},
		"SK":           &types.AttributeValueMemberS{Value: m.SK},
		"sessionId":    &types.AttributeValueMemberS{Value: m.SessionID},
		"userId":       &types.AttributeValueMemberS{Value: m.UserID},
		"lastActivity": &types.AttributeValueMemberS{Value: m.LastActivity},
		"turns":        &types.AttributeValueMemberN{Value: strconv.Itoa(m.Turns)},
		"ttl":          &types.AttributeValueMemberN{Value: strconv.FormatInt(m.TTL, 10)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
