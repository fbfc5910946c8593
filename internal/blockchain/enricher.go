package blockchain

import (
	"context"

	"github.com/kelsos/ledger-sync/internal/client"
	"github.com/kelsos/ledger-sync/internal/models"
)

// EnrichRequest is the input of one chain enrichment
type EnrichRequest struct {
	Chain                models.ChainConfig
	Accounts             []models.Account
	DestinationAddresses []string
	FilterByBalance      bool
	// Destination is set for the destination chain itself
	Destination bool
}

// EnrichResult holds the enriched accounts of a chain and the destination addresses they were
// paired with
type EnrichResult struct {
	Accounts             []models.Account
	MultisigAccounts     []models.MultisigAccount
	Collections          *models.Collections
	DestinationAddresses []string
}

// Enricher turns raw device addresses into accounts with on-chain state
type Enricher interface {
	Enrich(ctx context.Context, conn client.Conn, req EnrichRequest) (EnrichResult, error)
}
