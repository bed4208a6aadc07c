// Package metastore implements the transfer tool's study metadata store on
// Amazon DynamoDB.
//
// Each study is one item keyed by StudyInstanceUID, carrying the extracted
// DICOM fields as string attributes plus a FileLocations string set holding
// the object keys uploaded for the study. The table is created on first use
// and waited on with a bounded readiness poll.
package metastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

const (
	// hashKey is the table's partition key attribute.
	hashKey = "StudyInstanceUID"

	// locationsAttr is the string-set attribute holding uploaded object keys.
	locationsAttr = "FileLocations"

	defaultPollInterval = time.Second
	defaultPollAttempts = 30
)

// DynamoDBAPI is the subset of the AWS DynamoDB client this store calls.
// Tests substitute a mock; production code passes through to
// *dynamodb.Client.
type DynamoDBAPI interface {
	// PutItem writes an item.
	PutItem(
		ctx context.Context,
		params *dynamodb.PutItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.PutItemOutput, error)

	// GetItem reads an item by key.
	GetItem(
		ctx context.Context,
		params *dynamodb.GetItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.GetItemOutput, error)

	// UpdateItem applies an update expression to an item.
	UpdateItem(
		ctx context.Context,
		params *dynamodb.UpdateItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.UpdateItemOutput, error)

	// CreateTable creates a table.
	CreateTable(
		ctx context.Context,
		params *dynamodb.CreateTableInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.CreateTableOutput, error)

	// DescribeTable reads a table's status.
	DescribeTable(
		ctx context.Context,
		params *dynamodb.DescribeTableInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.DescribeTableOutput, error)
}

// Verify that the AWS DynamoDB client implements our interface.
var _ DynamoDBAPI = (*dynamodb.Client)(nil)

// Store is a study metadata store backed by DynamoDB. All methods are safe
// for concurrent use.
type Store struct {
	api          DynamoDBAPI
	logger       *slog.Logger
	pollInterval time.Duration
	pollAttempts int
}

// New creates a Store, resolving AWS configuration through the default
// credential chain unless options override it.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := applyOptions(opts)

	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.region))
	}
	if cfg.accessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.accessKeyID, cfg.secretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("metastore: load config: %w", err)
	}

	api := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.endpoint)
		}
	})

	return &Store{
		api:          api,
		logger:       cfg.logger,
		pollInterval: cfg.pollInterval,
		pollAttempts: cfg.pollAttempts,
	}, nil
}

// NewWithClient creates a Store over an existing DynamoDB API
// implementation. Used by tests to substitute a mock.
func NewWithClient(api DynamoDBAPI, opts ...Option) *Store {
	cfg := applyOptions(opts)
	return &Store{
		api:          api,
		logger:       cfg.logger,
		pollInterval: cfg.pollInterval,
		pollAttempts: cfg.pollAttempts,
	}
}

func applyOptions(opts []Option) *storeConfig {
	cfg := &storeConfig{
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// PutStudy writes the study's metadata fields, creating the table first if
// it does not exist. The study UID is stored under the hash key attribute
// regardless of whether fields carries it.
func (s *Store) PutStudy(ctx context.Context, table, studyUID string, fields map[string]string) error {
	if table == "" || studyUID == "" {
		return fmt.Errorf("metastore: put study: %w", ErrInvalidInput)
	}

	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	record := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	record[hashKey] = studyUID

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("metastore: marshal study %s: %w", studyUID, err)
	}

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("metastore: put study %s: %w", studyUID, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "stored study metadata",
			"table", table, "study_uid", studyUID, "fields", len(fields))
	}
	return nil
}

// GetStudy returns the string attributes of the study's item. A missing item
// yields ErrStudyNotFound. Non-string attributes, such as the location set,
// are not part of the field map.
func (s *Store) GetStudy(ctx context.Context, table, studyUID string) (map[string]string, error) {
	if table == "" || studyUID == "" {
		return nil, fmt.Errorf("metastore: get study: %w", ErrInvalidInput)
	}

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       studyKey(studyUID),
	})
	if err != nil {
		if isResourceNotFound(err) {
			return nil, fmt.Errorf("metastore: study %s: %w", studyUID, ErrStudyNotFound)
		}
		return nil, fmt.Errorf("metastore: get study %s: %w", studyUID, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("metastore: study %s: %w", studyUID, ErrStudyNotFound)
	}

	fields := make(map[string]string, len(out.Item))
	for name, attr := range out.Item {
		if sv, ok := attr.(*types.AttributeValueMemberS); ok {
			fields[name] = sv.Value
		}
	}
	return fields, nil
}

// AppendLocation adds an object key to the study's location set. The set-add
// is idempotent, so re-registering a key after a retried upload is safe.
func (s *Store) AppendLocation(ctx context.Context, table, studyUID, location string) error {
	if table == "" || studyUID == "" || location == "" {
		return fmt.Errorf("metastore: append location: %w", ErrInvalidInput)
	}

	if _, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(table),
		Key:              studyKey(studyUID),
		UpdateExpression: aws.String("ADD " + locationsAttr + " :loc"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":loc": &types.AttributeValueMemberSS{Value: []string{location}},
		},
	}); err != nil {
		return fmt.Errorf("metastore: append location for study %s: %w", studyUID, err)
	}
	return nil
}

// Locations returns the study's stored object keys. A missing item or an
// item without locations yields an empty slice, not an error.
func (s *Store) Locations(ctx context.Context, table, studyUID string) ([]string, error) {
	if table == "" || studyUID == "" {
		return nil, fmt.Errorf("metastore: locations: %w", ErrInvalidInput)
	}

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(table),
		Key:                  studyKey(studyUID),
		ProjectionExpression: aws.String(locationsAttr),
	})
	if err != nil {
		if isResourceNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("metastore: locations for study %s: %w", studyUID, err)
	}

	attr, ok := out.Item[locationsAttr]
	if !ok {
		return nil, nil
	}
	set, ok := attr.(*types.AttributeValueMemberSS)
	if !ok {
		return nil, nil
	}
	return set.Value, nil
}

// ensureTable makes sure the table exists and is ACTIVE, creating it when
// absent and waiting out the creation with a bounded poll.
func (s *Store) ensureTable(ctx context.Context, table string) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err == nil {
		return nil
	}
	if !isResourceNotFound(err) {
		return fmt.Errorf("metastore: describe table %s: %w", table, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "creating metadata table", "table", table)
	}

	_, err = s.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(hashKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
		},
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(5),
			WriteCapacityUnits: aws.Int64(5),
		},
	})
	if err != nil && !isResourceInUse(err) {
		// A concurrent creator racing us is fine; anything else is not.
		return fmt.Errorf("metastore: create table %s: %w", table, err)
	}

	return s.waitForActive(ctx, table)
}

// waitForActive polls the table status once per interval until it reports
// ACTIVE, giving up after the configured number of attempts.
func (s *Store) waitForActive(ctx context.Context, table string) error {
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		out, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(table),
		})
		if err == nil && out.Table != nil && out.Table.TableStatus == types.TableStatusActive {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("metastore: wait for table %s: %w", table, ctx.Err())
		case <-time.After(s.pollInterval):
		}
	}
	return fmt.Errorf("metastore: table %s: %w", table, ErrTableNotReady)
}

func studyKey(studyUID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		hashKey: &types.AttributeValueMemberS{Value: studyUID},
	}
}

func isResourceNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException"
}

func isResourceInUse(err error) bool {
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceInUseException"
}
