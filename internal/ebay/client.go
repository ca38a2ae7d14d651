// Package ebay implements the eBay side of the watcher: the OAuth2
// client-credentials exchange and the Browse API item search, both
// abstracted behind interfaces for testability.
package ebay

import (
	"context"

	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

// Fetcher returns the first page of results for one search query.
type Fetcher interface {
	Fetch(ctx context.Context, query string, cred Credential) ([]domain.Item, error)
}

// CredentialSource keeps an access credential valid.
type CredentialSource interface {
	EnsureValid(ctx context.Context, cur *Credential) (Credential, error)
}
