package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

const (
	// AuthorityIndex is keyed by authority_arn with issued_at as the sort key.
	AuthorityIndex = "GSI1"
	// FingerprintIndex is keyed by fingerprint.
	FingerprintIndex = "GSI2"
)

// DynamoDBAPI is the part of the DynamoDB client used by the certificate store.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBCertificateStore is a DynamoDB implementation of CertificateStore
type DynamoDBCertificateStore struct {
	client    DynamoDBAPI
	tableName string
}

// NewDynamoDBCertificateStore creates a new DynamoDB certificate store
func NewDynamoDBCertificateStore(client DynamoDBAPI, tableName string) *DynamoDBCertificateStore {
	return &DynamoDBCertificateStore{
		client:    client,
		tableName: tableName,
	}
}

// Get retrieves certificate metadata by serial number
func (s *DynamoDBCertificateStore) Get(ctx context.Context, serialNumber string) (*CertMetadata, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"serial_number": &types.AttributeValueMemberS{Value: serialNumber},
		},
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to get certificate")
	}

	if result.Item == nil {
		return nil, ErrCertNotFound
	}

	var cert CertMetadata
	if err := attributevalue.UnmarshalMap(result.Item, &cert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
	}

	return &cert, nil
}

// GetByFingerprint retrieves a certificate by fingerprint using GSI2
func (s *DynamoDBCertificateStore) GetByFingerprint(ctx context.Context, fingerprint string) (*CertMetadata, error) {
	keyEx := expression.Key("fingerprint").Equal(expression.Value(fingerprint))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(FingerprintIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to query certificate by fingerprint")
	}

	if len(result.Items) == 0 {
		return nil, ErrCertNotFound
	}

	var cert CertMetadata
	if err := attributevalue.UnmarshalMap(result.Items[0], &cert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
	}

	return &cert, nil
}

// GetByAuthority retrieves all certificates for an authority using GSI1
func (s *DynamoDBCertificateStore) GetByAuthority(ctx context.Context, authorityARN string) ([]*CertMetadata, error) {
	return s.queryByAuthority(ctx, authorityARN, 0)
}

func (s *DynamoDBCertificateStore) queryByAuthority(ctx context.Context, authorityARN string, limit int) ([]*CertMetadata, error) {
	keyEx := expression.Key("authority_arn").Equal(expression.Value(authorityARN))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(AuthorityIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(clampLimit(limit))
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, wrapAWSError(err, "failed to query certificates by authority")
	}

	return unmarshalCerts(result.Items), nil
}

// Register stores certificate metadata
func (s *DynamoDBCertificateStore) Register(ctx context.Context, cert *CertMetadata) error {
	item, err := attributevalue.MarshalMap(cert)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate: %w", err)
	}

	// Use ConditionExpression to prevent duplicates
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(serial_number)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrCertAlreadyExists
		}
		return wrapAWSError(err, "failed to register certificate")
	}

	log.Debug().
		Str("serial_number", cert.SerialNumber).
		Str("subject", cert.SubjectCN).
		Str("fingerprint", cert.Fingerprint).
		Msg("certificate registered")

	return nil
}

// List returns registered certificates. Without an authority filter the
// table is scanned and results come back in table order.
func (s *DynamoDBCertificateStore) List(ctx context.Context, opts ListCertificatesOptions) ([]*CertMetadata, error) {
	if opts.AuthorityARN != "" {
		return s.queryByAuthority(ctx, opts.AuthorityARN, opts.Limit)
	}

	input := &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	}

	var certs []*CertMetadata
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAWSError(err, "failed to list certificates")
		}

		certs = append(certs, unmarshalCerts(page.Items)...)
		if opts.Limit > 0 && len(certs) >= opts.Limit {
			return certs[:opts.Limit], nil
		}
	}

	return certs, nil
}

func unmarshalCerts(items []map[string]types.AttributeValue) []*CertMetadata {
	certs := make([]*CertMetadata, 0, len(items))
	for _, item := range items {
		var cert CertMetadata
		if err := attributevalue.UnmarshalMap(item, &cert); err != nil {
			log.Error().Err(err).Msg("failed to unmarshal certificate, skipping")
			continue
		}
		certs = append(certs, &cert)
	}
	return certs
}

func clampLimit(limit int) int32 {
	if limit > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(limit)
}
