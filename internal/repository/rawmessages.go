package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"whatsapp-connect-chat/internal/domain"
)

type putItemAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// RawMessageStore buffers inbound webhook messages into the raw-messages
// table. Rows are keyed by sender and message id; the message timestamp
// doubles as the table's TTL attribute.
type RawMessageStore struct {
	api       putItemAPI
	tableName string
	encoder   *attributevalue.Encoder
}

func NewRawMessageStore(api putItemAPI, tableName string) (*RawMessageStore, error) {
	if api == nil {
		return nil, errors.New("repository: dynamodb api must not be nil")
	}
	if tableName == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	// attribute names must match the wire-format names the change-feed
	// consumer decodes, so the encoder reuses the json tags
	encoder := attributevalue.NewEncoder(func(o *attributevalue.EncoderOptions) {
		o.TagKey = "json"
	})
	return &RawMessageStore{api: api, tableName: tableName, encoder: encoder}, nil
}

func (s *RawMessageStore) Put(ctx context.Context, rec domain.RawMessageRecord) error {
	if rec.From == "" || rec.ID == "" {
		return errors.New("repository: raw message requires from and id")
	}
	av, err := s.encoder.Encode(rec)
	if err != nil {
		return fmt.Errorf("repository: encode raw message: %w", err)
	}
	item, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return errors.New("repository: raw message did not encode to a map")
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item.Value,
	})
	if err != nil {
		return fmt.Errorf("repository: put raw message: %w", err)
	}
	return nil
}
