package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// TableAPI is the part of the DynamoDB client used to manage the ledger table.
type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// Config holds configuration for creating the issuance ledger
type Config struct {
	DynamoClient TableAPI

	// TableName is the ledger table, created if it does not exist
	TableName string

	// CleanResources controls whether to delete an existing table before creating
	// Set to true in tests to start from an empty ledger
	CleanResources bool
}

// Resources holds identifiers for created infrastructure resources
type Resources struct {
	LedgerTable string
	// Created is false when an existing table was reused
	Created bool
}
