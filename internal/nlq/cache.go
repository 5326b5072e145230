package nlq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jonboulle/clockwork"
)

type CacheClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type CacheKey struct {
	Question    string
	SchemaHash  string // invalidates entries when the schema changes
	MaxAttempts int
}

type cacheItem struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	Answer    AskResult `dynamodbav:"Answer"`
	CreatedAt int64     `dynamodbav:"CreatedAt"`
	ExpiresAt int64     `dynamodbav:"ExpiresAt"`
}

// DynamoAnswerCache keeps answers in a table with a TTL attribute (ExpiresAt).
type DynamoAnswerCache struct {
	ddb   CacheClient
	table string
	ttl   time.Duration
	clock clockwork.Clock
}

func NewDynamoAnswerCache(ddb CacheClient, table string, ttl time.Duration, clock clockwork.Clock) (*DynamoAnswerCache, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, fmt.Errorf("missing cache table")
	}
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DynamoAnswerCache{ddb: ddb, table: table, ttl: ttl, clock: clock}, nil
}

func NormalizeQuestion(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	return strings.Join(strings.Fields(q), " ")
}

func HashKeyMaterial(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func MakeCachePK(k CacheKey) string {
	h := k.SchemaHash
	if len(h) > 16 {
		h = h[:16]
	}
	return "SCHEMA#" + h
}

func MakeCacheSK(k CacheKey) string {
	material := strings.Join([]string{
		"schema=" + k.SchemaHash,
		"attempts=" + fmt.Sprintf("%d", k.MaxAttempts),
		"q=" + NormalizeQuestion(k.Question),
	}, "|")
	return "NLQ#" + HashKeyMaterial(material)
}

func (c *DynamoAnswerCache) Get(ctx context.Context, key CacheKey) (*AskResult, bool, error) {
	out, err := c.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: MakeCachePK(key)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: MakeCacheSK(key)},
		},
		ConsistentRead: aws.Bool(false),
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache GetItem: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}

	var it cacheItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, false, nil
	}
	// TTL deletion in DynamoDB is lazy
	if it.ExpiresAt <= c.clock.Now().UTC().Unix() {
		return nil, false, nil
	}
	return &it.Answer, true, nil
}

func (c *DynamoAnswerCache) Put(ctx context.Context, key CacheKey, res AskResult) error {
	now := c.clock.Now().UTC()
	item, err := attributevalue.MarshalMap(cacheItem{
		PK:        MakeCachePK(key),
		SK:        MakeCacheSK(key),
		Answer:    res,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(c.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}

	_, err = c.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("cache PutItem: %w", err)
	}
	return nil
}
