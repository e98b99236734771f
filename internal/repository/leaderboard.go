package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"bouncer-agent/internal/domain"
)

const (
	leaderPK      = "LEADER"
	skPrefixEntry = "USER#"
	pkPrefixConv  = "CONV#"
	skTranscript  = "TRANSCRIPT"
	ttlDuration   = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps a DynamoDB table holding leaderboard rows and transcript
// archives. Score rows live in a single LEADER partition; the leaderboard is
// small enough that rank is computed by reading the partition and sorting.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// entrySK returns the sort key for one username+role score row.
func entrySK(username, role string) string {
	return skPrefixEntry + username + "#ROLE#" + role
}

// ttlValue returns a Unix timestamp 30 days in the future.
func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// RecordScore upserts a score row for username+role, keeping whichever total
// is better. Same read-compare-write the original leaderboard used; the
// LEADER partition is low-contention.
func (c *Client) RecordScore(ctx context.Context, username, role string, score domain.Score) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(role) == "" {
		return errors.New("repository: RecordScore: username and role are required")
	}

	existing, err := c.getEntry(ctx, username, role)
	if err != nil {
		return fmt.Errorf("repository: RecordScore read existing: %w", err)
	}
	if existing != nil && existing.Score >= score.TotalScore {
		return nil
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      scoreItem(username, role, score),
	})
	if err != nil {
		return fmt.Errorf("repository: RecordScore put: %w", err)
	}
	return nil
}

// GetHighScores returns the top rows, one per user (each user's best).
func (c *Client) GetHighScores(ctx context.Context, limit int) ([]domain.HighScore, error) {
	rows, err := c.queryLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHighScores: %w", err)
	}
	best := bestPerUser(rows)
	if limit > 0 && len(best) > limit {
		best = best[:limit]
	}
	return best, nil
}

// GetUserBestScore returns the user's best row, or nil if they have none.
func (c *Client) GetUserBestScore(ctx context.Context, username string) (*domain.HighScore, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: leaderPK},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixEntry + username + "#ROLE#"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetUserBestScore query: %w", err)
	}

	var best *domain.HighScore
	for _, item := range out.Items {
		row, err := itemToHighScore(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetUserBestScore unmarshal: %w", err)
		}
		if best == nil || row.Score > best.Score {
			r := row
			best = &r
		}
	}
	return best, nil
}

// GetUserRank returns the user's 1-based position among each user's best
// scores, or nil when the user has no recorded score.
func (c *Client) GetUserRank(ctx context.Context, username string) (*int, error) {
	rows, err := c.queryLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: GetUserRank: %w", err)
	}
	for i, row := range bestPerUser(rows) {
		if row.Username == username {
			rank := i + 1
			return &rank, nil
		}
	}
	return nil, nil
}

// SaveConversation archives a granted run's transcript. Best effort at the
// orchestration boundary; here it is an ordinary write.
func (c *Client) SaveConversation(ctx context.Context, username, role string, messages []domain.ChatMessage, score domain.Score) error {
	transcript, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("repository: SaveConversation marshal: %w", err)
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: pkPrefixConv + uuid.NewString()},
			"SK":         &types.AttributeValueMemberS{Value: skTranscript},
			"username":   &types.AttributeValueMemberS{Value: username},
			"role":       &types.AttributeValueMemberS{Value: role},
			"messages":   &types.AttributeValueMemberS{Value: string(transcript)},
			"score":      &types.AttributeValueMemberN{Value: strconv.Itoa(score.TotalScore)},
			"created_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveConversation put: %w", err)
	}
	return nil
}

func (c *Client) getEntry(ctx context.Context, username, role string) (*domain.HighScore, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: leaderPK},
			"SK": &types.AttributeValueMemberS{Value: entrySK(username, role)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	row, err := itemToHighScore(out.Item)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (c *Client) queryLeaderboard(ctx context.Context) ([]domain.HighScore, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: leaderPK},
		},
	})
	if err != nil {
		return nil, err
	}

	rows := make([]domain.HighScore, 0, len(out.Items))
	for _, item := range out.Items {
		row, err := itemToHighScore(item)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// bestPerUser sorts rows by score descending and keeps each user's first
// (best) row.
func bestPerUser(rows []domain.HighScore) []domain.HighScore {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Score > rows[j].Score
	})
	seen := make(map[string]bool, len(rows))
	best := make([]domain.HighScore, 0, len(rows))
	for _, row := range rows {
		if seen[row.Username] {
			continue
		}
		seen[row.Username] = true
		best = append(best, row)
	}
	return best
}

func scoreItem(username, role string, score domain.Score) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: leaderPK},
		"SK":             &types.AttributeValueMemberS{Value: entrySK(username, role)},
		"username":       &types.AttributeValueMemberS{Value: username},
		"role":           &types.AttributeValueMemberS{Value: role},
		"score":          &types.AttributeValueMemberN{Value: strconv.Itoa(score.TotalScore)},
		"role_coolness":  &types.AttributeValueMemberN{Value: strconv.Itoa(score.RoleCoolness)},
		"vibe_score":     &types.AttributeValueMemberN{Value: strconv.Itoa(score.VibeScore)},
		"exchange_score": &types.AttributeValueMemberN{Value: strconv.Itoa(score.ExchangeScore)},
		"exchange_count": &types.AttributeValueMemberN{Value: strconv.Itoa(score.ExchangeCount)},
		"created_at":     &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
	}
}

// itemToHighScore converts a DynamoDB attribute map to a HighScore.
func itemToHighScore(item map[string]types.AttributeValue) (domain.HighScore, error) {
	username, err := strAttr(item, "username")
	if err != nil {
		return domain.HighScore{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.HighScore{}, err
	}
	score, err := intAttr(item, "score")
	if err != nil {
		return domain.HighScore{}, err
	}
	roleCoolness, _ := intAttr(item, "role_coolness")
	vibeScore, _ := intAttr(item, "vibe_score")
	exchangeScore, _ := intAttr(item, "exchange_score")
	exchangeCount, _ := intAttr(item, "exchange_count")
	createdAt, _ := strAttr(item, "created_at") // allow empty

	return domain.HighScore{
		Username:      username,
		Role:          role,
		Score:         score,
		RoleCoolness:  roleCoolness,
		VibeScore:     vibeScore,
		ExchangeScore: exchangeScore,
		ExchangeCount: exchangeCount,
		CreatedAt:     createdAt,
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
