// Package dynamodb provides a DynamoDB-backed audit log driver.
//
// Items are keyed by PK = "MSG#<platform>:<platform_message_id>". Scoped
// listing reads the "scope-created_at" global secondary index whose hash key
// is "scope" (user/group) and whose range key is "created_at".
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/papercomputeco/recall/pkg/storage"
)

const (
	pkPrefix = "MSG#"

	// ScopeIndex is the global secondary index used for scoped listing.
	ScopeIndex = "scope-created_at"
)

// dynamodbAPI is the minimal DynamoDB interface required by Driver.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *awsdynamodb.GetItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *awsdynamodb.PutItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *awsdynamodb.QueryInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *awsdynamodb.ScanInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.ScanOutput, error)
}

// Driver implements storage.Driver on a DynamoDB table.
type Driver struct {
	api       dynamodbAPI
	tableName string
}

// NewDriver loads the default AWS configuration and returns a driver for tableName.
func NewDriver(ctx context.Context, tableName string) (*Driver, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return New(awsdynamodb.NewFromConfig(cfg), tableName)
}

// New creates a driver over an existing DynamoDB client.
func New(api dynamodbAPI, tableName string) (*Driver, error) {
	if api == nil {
		return nil, errors.New("dynamodb: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamodb: table name must not be empty")
	}
	return &Driver{api: api, tableName: tableName}, nil
}

func messagePK(platform, platformMessageID string) string {
	return pkPrefix + platform + ":" + platformMessageID
}

func scopeKey(userID, groupID string) string {
	return userID + "/" + groupID
}

// SaveMessage writes msg unless an item with the same key already exists.
func (d *Driver) SaveMessage(ctx context.Context, msg *storage.Message) (bool, error) {
	if err := storage.Prepare(msg); err != nil {
		return false, err
	}

	_, err := d.api.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                messageItem(msg),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, fmt.Errorf("dynamodb: SaveMessage: %w", err)
	}
	return true, nil
}

// GetMessage retrieves a message by its platform key.
func (d *Driver) GetMessage(ctx context.Context, platform, platformMessageID string) (*storage.Message, error) {
	out, err := d.api.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: messagePK(platform, platformMessageID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: GetMessage: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, storage.NotFoundError{Platform: platform, PlatformMessageID: platformMessageID}
	}

	msg, err := itemToMessage(out.Item)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: GetMessage unmarshal: %w", err)
	}
	return msg, nil
}

// ListMessages returns matching messages, newest first. A filter naming
// both user and group queries the scope index; anything else scans.
func (d *Driver) ListMessages(ctx context.Context, filter storage.Filter) ([]*storage.Message, error) {
	if filter.UserID != "" && filter.GroupID != "" {
		return d.queryScope(ctx, filter)
	}
	return d.scan(ctx, filter)
}

func (d *Driver) queryScope(ctx context.Context, filter storage.Filter) ([]*storage.Message, error) {
	limit := filter.EffectiveLimit()
	in := &awsdynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		IndexName:              aws.String(ScopeIndex),
		KeyConditionExpression: aws.String("#scope = :scope"),
		ExpressionAttributeNames: map[string]string{
			"#scope": "scope",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":scope": &types.AttributeValueMemberS{Value: scopeKey(filter.UserID, filter.GroupID)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	var result []*storage.Message
	for {
		out, err := d.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("dynamodb: ListMessages query: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("dynamodb: ListMessages unmarshal: %w", err)
			}
			if !filter.Matches(msg) {
				continue
			}
			result = append(result, msg)
			if len(result) == limit {
				return result, nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return result, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (d *Driver) scan(ctx context.Context, filter storage.Filter) ([]*storage.Message, error) {
	in := &awsdynamodb.ScanInput{TableName: aws.String(d.tableName)}

	var result []*storage.Message
	for {
		out, err := d.api.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("dynamodb: ListMessages scan: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("dynamodb: ListMessages unmarshal: %w", err)
			}
			if filter.Matches(msg) {
				result = append(result, msg)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit := filter.EffectiveLimit(); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Close is a no-op; the AWS client holds no resources that need releasing.
func (d *Driver) Close() error {
	return nil
}

func messageItem(msg *storage.Message) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":                  &types.AttributeValueMemberS{Value: messagePK(msg.Platform, msg.PlatformMessageID)},
		"scope":               &types.AttributeValueMemberS{Value: scopeKey(msg.UserID, msg.GroupID)},
		"id":                  &types.AttributeValueMemberS{Value: msg.ID},
		"platform":            &types.AttributeValueMemberS{Value: msg.Platform},
		"platform_message_id": &types.AttributeValueMemberS{Value: msg.PlatformMessageID},
		"group_id":            &types.AttributeValueMemberS{Value: msg.GroupID},
		"user_id":             &types.AttributeValueMemberS{Value: msg.UserID},
		"content":             &types.AttributeValueMemberS{Value: msg.Content},
		"response":            &types.AttributeValueMemberS{Value: msg.Response},
		"model":               &types.AttributeValueMemberS{Value: msg.Model},
		"created_at":          &types.AttributeValueMemberN{Value: strconv.FormatInt(msg.CreatedAt.UnixNano(), 10)},
	}
	if msg.ReplyToMessageID != "" {
		item["reply_to_message_id"] = &types.AttributeValueMemberS{Value: msg.ReplyToMessageID}
	}
	if msg.ThreadID != "" {
		item["thread_id"] = &types.AttributeValueMemberS{Value: msg.ThreadID}
	}
	if len(msg.MemoryIDs) > 0 {
		ids := make([]types.AttributeValue, 0, len(msg.MemoryIDs))
		for _, id := range msg.MemoryIDs {
			ids = append(ids, &types.AttributeValueMemberS{Value: id})
		}
		item["memory_ids"] = &types.AttributeValueMemberL{Value: ids}
	}
	return item
}

func itemToMessage(item map[string]types.AttributeValue) (*storage.Message, error) {
	var (
		msg storage.Message
		err error
	)
	if msg.Platform, err = strAttr(item, "platform"); err != nil {
		return nil, err
	}
	if msg.PlatformMessageID, err = strAttr(item, "platform_message_id"); err != nil {
		return nil, err
	}
	if msg.Content, err = strAttr(item, "content"); err != nil {
		return nil, err
	}
	createdAt, err := intAttr(item, "created_at")
	if err != nil {
		return nil, err
	}
	msg.CreatedAt = time.Unix(0, createdAt).UTC()

	// optional attributes
	msg.ID, _ = strAttr(item, "id")
	msg.GroupID, _ = strAttr(item, "group_id")
	msg.UserID, _ = strAttr(item, "user_id")
	msg.Response, _ = strAttr(item, "response")
	msg.Model, _ = strAttr(item, "model")
	msg.ReplyToMessageID, _ = strAttr(item, "reply_to_message_id")
	msg.ThreadID, _ = strAttr(item, "thread_id")

	if l, ok := item["memory_ids"].(*types.AttributeValueMemberL); ok {
		for _, v := range l.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				msg.MemoryIDs = append(msg.MemoryIDs, s.Value)
			}
		}
	}
	return &msg, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
