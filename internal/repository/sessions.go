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

	"whatsapp-connect-chat/internal/domain"
)

const customerIndex = "customerId-index"

// dynamodbAPI is the minimal DynamoDB interface required by SessionStore.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// SessionStore maps sender identities to their open chat session in the
// active-connections table. The table is keyed by contactId with a
// secondary index on (customerId, channel), so a record can be resolved
// by sender and deleted by session id.
type SessionStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
}

// NewSessionStore creates a SessionStore over the given table. ttl
// controls the expiry stamp written on each record.
func NewSessionStore(api dynamodbAPI, tableName string, ttl time.Duration) (*SessionStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{api: api, tableName: tableName, ttl: ttl}, nil
}

// GetBySender returns the open session for a (customer id, channel)
// pair, or nil when no record exists.
func (s *SessionStore) GetBySender(ctx context.Context, customerID, channel string) (*domain.SessionRecord, error) {
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(customerIndex),
		KeyConditionExpression: aws.String("customerId = :cid AND channel = :ch"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: customerID},
			":ch":  &types.AttributeValueMemberS{Value: channel},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetBySender query: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	rec, err := itemToSession(out.Items[0])
	if err != nil {
		return nil, fmt.Errorf("repository: GetBySender unmarshal: %w", err)
	}
	return &rec, nil
}

// Put writes or replaces the session record keyed by its contact id and
// stamps the TTL attribute.
func (s *SessionStore) Put(ctx context.Context, rec domain.SessionRecord) error {
	if rec.ContactID == "" {
		return errors.New("repository: Put: contact id is required")
	}
	if rec.ExpiresAt == 0 {
		rec.ExpiresAt = time.Now().Add(s.ttl).Unix()
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      sessionItem(rec),
	})
	if err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

// Remove deletes the record keyed by the given contact id. Removing an
// absent key is not an error.
func (s *SessionStore) Remove(ctx context.Context, contactID string) error {
	if contactID == "" {
		return errors.New("repository: Remove: contact id is required")
	}
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"contactId": &types.AttributeValueMemberS{Value: contactID},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Remove: %w", err)
	}
	return nil
}

func sessionItem(rec domain.SessionRecord) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"contactId":        &types.AttributeValueMemberS{Value: rec.ContactID},
		"customerId":       &types.AttributeValueMemberS{Value: rec.CustomerID},
		"channel":          &types.AttributeValueMemberS{Value: rec.Channel},
		"participantToken": &types.AttributeValueMemberS{Value: rec.ParticipantToken},
		"connectionToken":  &types.AttributeValueMemberS{Value: rec.ConnectionToken},
		"name":             &types.AttributeValueMemberS{Value: rec.Name},
		"systemNumber":     &types.AttributeValueMemberS{Value: rec.SystemNumber},
		"date":             &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ExpiresAt, 10)},
	}
}

func itemToSession(item map[string]types.AttributeValue) (domain.SessionRecord, error) {
	contactID, err := strAttr(item, "contactId")
	if err != nil {
		return domain.SessionRecord{}, err
	}
	customerID, err := strAttr(item, "customerId")
	if err != nil {
		return domain.SessionRecord{}, err
	}
	connectionToken, err := strAttr(item, "connectionToken")
	if err != nil {
		return domain.SessionRecord{}, err
	}
	channel, _ := strAttr(item, "channel")                   // allow empty
	participantToken, _ := strAttr(item, "participantToken") // allow empty
	name, _ := strAttr(item, "name")
	systemNumber, _ := strAttr(item, "systemNumber")
	expiresAt, _ := intAttr(item, "date")

	return domain.SessionRecord{
		ContactID:        contactID,
		CustomerID:       customerID,
		Channel:          channel,
		ParticipantToken: participantToken,
		ConnectionToken:  connectionToken,
		Name:             name,
		SystemNumber:     systemNumber,
		ExpiresAt:        int64(expiresAt),
	}, nil
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
