package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"taste-agent/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL

	// fixed width so sort keys order lexically by time
	skTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// journalAPI is the minimal DynamoDB interface required by Journal.
type journalAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Journal is an append-only audit log of completed turns. Each turn is one
// transaction: the user message, the assistant message and an update of
// the conversation's META# item. Items expire after 30 days.
type Journal struct {
	api       journalAPI
	tableName string
	now       func() time.Time
}

func NewJournal(api journalAPI, tableName string) (*Journal, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Journal{api: api, tableName: tableName, now: time.Now}, nil
}

// convPK returns the partition key for one user's conversation.
func convPK(userID, conversationID string) string {
	return "CONV#" + userID + "#" + conversationID
}

// msgSK orders messages by time, then by position within the turn.
func msgSK(ts time.Time, seq int, messageID string) string {
	return fmt.Sprintf("%s%s#%d#%s", skPrefixMsg, ts.UTC().Format(skTimeLayout), seq, messageID)
}

func (j *Journal) ttlValue() int64 {
	return j.now().Add(ttlDuration).Unix()
}

// RecordTurn writes one completed turn.
func (j *Journal) RecordTurn(ctx context.Context, rec domain.TurnRecord) error {
	if rec.UserID == "" || rec.ConversationID == "" {
		return errors.New("repository: RecordTurn: user and conversation ids are required")
	}
	pk := convPK(rec.UserID, rec.ConversationID)
	ttl := j.ttlValue()

	userItem, err := messageItem(pk, 0, rec.UserMessage, rec, ttl)
	if err != nil {
		return fmt.Errorf("repository: RecordTurn: %w", err)
	}
	assistantItem, err := messageItem(pk, 1, rec.AssistantMessage, rec, ttl)
	if err != nil {
		return fmt.Errorf("repository: RecordTurn: %w", err)
	}

	_, err = j.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: newMessagePut(j.tableName, userItem)},
			{Put: newMessagePut(j.tableName, assistantItem)},
			{Update: &types.Update{
				TableName: aws.String(j.tableName),
				Key: map[string]types.AttributeValue{
					"PK": sAttr(pk),
					"SK": sAttr(skMeta),
				},
				UpdateExpression: aws.String("SET userId = :uid, conversationId = :cid, lastActivity = :ts, " +
					"lastOutcome = :outcome, callCount = :calls, #ttl = :ttl ADD turns :one"),
				ExpressionAttributeNames: map[string]string{"#ttl": "ttl"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":uid":     sAttr(rec.UserID),
					":cid":     sAttr(rec.ConversationID),
					":ts":      sAttr(rec.AssistantMessage.Timestamp.UTC().Format(time.RFC3339)),
					":outcome": sAttr(rec.Outcome),
					":calls":   nAttr(int64(rec.CallCount)),
					":ttl":     nAttr(ttl),
					":one":     nAttr(1),
				},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: RecordTurn: %w", err)
	}
	return nil
}

// History returns up to limit of the most recent journaled messages of a
// conversation in chronological order.
func (j *Journal) History(ctx context.Context, userID, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	out, err := j.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(j.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     sAttr(convPK(userID, conversationID)),
			":prefix": sAttr(skPrefixMsg),
		},
		// Read newest first so LIMIT favors the most recent messages.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: History query: %w", err)
	}

	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: History unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	for i, k := 0, len(msgs)-1; i < k; i, k = i+1, k-1 {
		msgs[i], msgs[k] = msgs[k], msgs[i]
	}
	return msgs, nil
}

func newMessagePut(table string, item map[string]types.AttributeValue) *types.Put {
	return &types.Put{
		TableName:           aws.String(table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	}
}

func messageItem(pk string, seq int, msg domain.Message, rec domain.TurnRecord, ttl int64) (map[string]types.AttributeValue, error) {
	if msg.ID == "" {
		return nil, errors.New("message id is required")
	}
	item := map[string]types.AttributeValue{
		"PK":             sAttr(pk),
		"SK":             sAttr(msgSK(msg.Timestamp, seq, msg.ID)),
		"userId":         sAttr(rec.UserID),
		"conversationId": sAttr(rec.ConversationID),
		"messageId":      sAttr(msg.ID),
		"role":           sAttr(string(msg.Role)),
		"text":           sAttr(msg.Text),
		"timestamp":      sAttr(msg.Timestamp.UTC().Format(time.RFC3339Nano)),
		"ttl":            nAttr(ttl),
	}
	if len(msg.ToolCalls) > 0 {
		raw, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return nil, fmt.Errorf("marshal tool calls: %w", err)
		}
		item["toolCalls"] = sAttr(string(raw))
	}
	return item, nil
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := strAttr(item, "messageId")
	if err != nil {
		return domain.Message{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Message{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{ID: id, Role: domain.Role(role), Text: text}

	if ts := optStrAttr(item, "timestamp"); ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return domain.Message{}, fmt.Errorf("repository: parse timestamp: %w", err)
		}
		msg.Timestamp = parsed
	}
	if raw := optStrAttr(item, "toolCalls"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &msg.ToolCalls); err != nil {
			return domain.Message{}, fmt.Errorf("repository: decode tool calls: %w", err)
		}
	}
	return msg, nil
}
