package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Bootstrap creates the infrastructure the optional issuance ledger needs.
// Existing resources are reused unless CleanResources is set.
func Bootstrap(ctx context.Context, cfg Config) (*Resources, error) {
	if cfg.DynamoClient == nil {
		return nil, fmt.Errorf("DynamoClient is required")
	}
	if cfg.TableName == "" {
		return nil, fmt.Errorf("TableName is required")
	}

	created, err := CreateLedgerTable(ctx, cfg.DynamoClient, cfg.TableName, cfg.CleanResources)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger table: %w", err)
	}

	log.Debug().
		Str("table", cfg.TableName).
		Bool("created", created).
		Msg("Ledger table ready")

	return &Resources{LedgerTable: cfg.TableName, Created: created}, nil
}

// Cleanup deletes all resources created by Bootstrap
func Cleanup(ctx context.Context, cfg Config, res *Resources) error {
	if err := deleteTableIfExists(ctx, cfg.DynamoClient, res.LedgerTable); err != nil {
		return fmt.Errorf("failed to delete ledger table: %w", err)
	}
	return nil
}
