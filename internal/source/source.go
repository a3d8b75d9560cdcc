// internal/source/source.go

// Package source is the ingestion boundary for externally supplied data:
// catalog snapshots, wallets, requirement sets, rubrics and consultation
// choices. Identifier shapes are normalized and categories validated here;
// the core packages assume clean input.
package source

import (
	"context"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/navigator"
	"oraclebackend/internal/offering"
)

// CatalogSource supplies the offering catalog snapshot.
type CatalogSource interface {
	FetchOfferings(ctx context.Context) ([]catalog.Entry, error)
}

// WalletSource supplies a user's wallet snapshot.
type WalletSource interface {
	FetchWallet(ctx context.Context, userID string) ([]offering.WalletEntry, error)
}

// RequirementSource supplies the requirement set for a consultation.
type RequirementSource interface {
	FetchRequiredAlternatives(ctx context.Context, consultationID string) ([]offering.Alternative, error)
}

// RubricSource supplies the admin browser's rubric and choice snapshots.
type RubricSource interface {
	FetchRubrics(ctx context.Context) ([]navigator.Rubric, error)
	FetchConsultationChoices(ctx context.Context) ([]navigator.Choice, error)
}
