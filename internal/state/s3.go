package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/internal/logging"
)

// s3Backend stores state in an S3 object and locks through a DynamoDB table
// with an atomic conditional write keyed by the state path. With bucket
// versioning enabled, every Persist retains a recoverable prior version.
type s3Backend struct {
	bucket        string
	key           string
	region        string
	dynamoDBTable string
	encrypt       bool

	s3Client *s3.Client
	dbClient *dynamodb.Client
}

func newS3Backend(ctx context.Context, config map[string]string) (Backend, error) {
	bucket := config["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("s3 backend requires 'bucket' configuration")
	}

	key := config["key"]
	if key == "" {
		key = "statecraft/state.json"
	}

	region := config["region"]
	if region == "" {
		region = "us-east-1"
	}

	b := &s3Backend{
		bucket:        bucket,
		key:           key,
		region:        region,
		dynamoDBTable: config["dynamodb_table"],
		encrypt:       config["encrypt"] == "true",
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(b.region))
	if profile := config["profile"]; profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	b.s3Client = s3.NewFromConfig(cfg)
	if b.dynamoDBTable != "" {
		b.dbClient = dynamodb.NewFromConfig(cfg)
	} else {
		logging.Warn("s3 backend configured without a dynamodb_table; state locking is disabled")
	}

	return b, nil
}

func (b *s3Backend) Fetch(ctx context.Context) (*ir.Snapshot, error) {
	result, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) || strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404") {
			return ir.NewSnapshot(), nil
		}
		return nil, fmt.Errorf("failed to read state from s3://%s/%s: %w", b.bucket, b.key, err)
	}
	defer result.Body.Close()

	return decodeSnapshot(result.Body)
}

func (b *s3Backend) Persist(ctx context.Context, snap *ir.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if b.encrypt {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := b.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to write state to s3://%s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}

// Lock writes a lock item conditionally: it succeeds only if no item exists
// for this state path, or the existing item's lease has expired.
func (b *s3Backend) Lock(ctx context.Context, info *LockInfo) error {
	if b.dbClient == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := b.dbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.dynamoDBTable),
		Item: map[string]dbtypes.AttributeValue{
			"LockID":    &dbtypes.AttributeValueMemberS{Value: b.key},
			"Info":      &dbtypes.AttributeValueMemberS{Value: info.ID},
			"Holder":    &dbtypes.AttributeValueMemberS{Value: info.Holder},
			"Operation": &dbtypes.AttributeValueMemberS{Value: info.Operation},
			"Created":   &dbtypes.AttributeValueMemberS{Value: info.Created.Format(time.RFC3339)},
			"Expires":   &dbtypes.AttributeValueMemberS{Value: info.Expires.Format(time.RFC3339)},
		},
		ConditionExpression:      aws.String("attribute_not_exists(LockID) OR #expires < :now"),
		ExpressionAttributeNames: map[string]string{"#expires": "Expires"},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":now": &dbtypes.AttributeValueMemberS{Value: now},
		},
	})
	if err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) || strings.Contains(err.Error(), "ConditionalCheckFailedException") {
			return b.lockHeldError(ctx)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

// lockHeldError reads the current lock item to report who holds it.
func (b *s3Backend) lockHeldError(ctx context.Context) error {
	out, err := b.dbClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.dynamoDBTable),
		Key:            map[string]dbtypes.AttributeValue{"LockID": &dbtypes.AttributeValueMemberS{Value: b.key}},
		ConsistentRead: aws.Bool(true),
	})
	held := &LockHeldError{Holder: "unknown"}
	if err == nil && out.Item != nil {
		if v, ok := out.Item["Info"].(*dbtypes.AttributeValueMemberS); ok {
			held.ID = v.Value
		}
		if v, ok := out.Item["Holder"].(*dbtypes.AttributeValueMemberS); ok {
			held.Holder = v.Value
		}
		if v, ok := out.Item["Operation"].(*dbtypes.AttributeValueMemberS); ok {
			held.Operation = v.Value
		}
		if v, ok := out.Item["Created"].(*dbtypes.AttributeValueMemberS); ok {
			if created, perr := time.Parse(time.RFC3339, v.Value); perr == nil {
				held.Age = time.Since(created)
			}
		}
	}
	return held
}

func (b *s3Backend) Renew(ctx context.Context, id string, expires time.Time) error {
	if b.dbClient == nil {
		return nil
	}
	_, err := b.dbClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(b.dynamoDBTable),
		Key:                      map[string]dbtypes.AttributeValue{"LockID": &dbtypes.AttributeValueMemberS{Value: b.key}},
		UpdateExpression:         aws.String("SET #expires = :expires"),
		ConditionExpression:      aws.String("Info = :id"),
		ExpressionAttributeNames: map[string]string{"#expires": "Expires"},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":expires": &dbtypes.AttributeValueMemberS{Value: expires.Format(time.RFC3339)},
			":id":      &dbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to renew lock lease: %w", err)
	}
	return nil
}

func (b *s3Backend) Unlock(ctx context.Context, id string, force bool) error {
	if b.dbClient == nil {
		return nil
	}

	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(b.dynamoDBTable),
		Key:       map[string]dbtypes.AttributeValue{"LockID": &dbtypes.AttributeValueMemberS{Value: b.key}},
	}
	if !force {
		input.ConditionExpression = aws.String("Info = :id")
		input.ExpressionAttributeValues = map[string]dbtypes.AttributeValue{
			":id": &dbtypes.AttributeValueMemberS{Value: id},
		}
	}

	if _, err := b.dbClient.DeleteItem(ctx, input); err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("lock %s is held by someone else; use force-unlock to override", id)
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Versions lists retained object versions, newest first. Requires bucket
// versioning to be enabled.
func (b *s3Backend) Versions(ctx context.Context) ([]VersionInfo, error) {
	out, err := b.s3Client.ListObjectVersions(ctx, &s3.ListObjectVersionsInput{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list state versions: %w", err)
	}

	var versions []VersionInfo
	for _, v := range out.Versions {
		if aws.ToString(v.Key) != b.key {
			continue
		}
		info := VersionInfo{ID: aws.ToString(v.VersionId)}
		if v.LastModified != nil {
			info.Created = *v.LastModified
		}
		versions = append(versions, info)
	}
	return versions, nil
}

// FetchVersion retrieves one retained object version by S3 version id.
func (b *s3Backend) FetchVersion(ctx context.Context, id string) (*ir.Snapshot, error) {
	result, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:    aws.String(b.bucket),
		Key:       aws.String(b.key),
		VersionId: aws.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read state version %s: %w", id, err)
	}
	defer result.Body.Close()

	return decodeSnapshot(result.Body)
}

func decodeSnapshot(r io.Reader) (*ir.Snapshot, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to read state body: %w", err)
	}
	var snap ir.Snapshot
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return &snap, nil
}
