// Package domain defines the core business types for the listing watcher.
package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Listing kinds reported by the Browse API in buyingOptions.
const (
	KindAuction    = "AUCTION"
	KindFixedPrice = "FIXED_PRICE"
	KindBestOffer  = "BEST_OFFER"
)

// Price is an amount in a single currency.
type Price struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Equal reports whether two prices have the same numeric amount and currency.
// "90" and "90.00" are equal.
func (p Price) Equal(o Price) bool {
	return p.Currency == o.Currency && p.Amount.Equal(o.Amount)
}

// String renders the price as "<amount> <currency>".
func (p Price) String() string {
	return fmt.Sprintf("%s %s", p.Amount.String(), p.Currency)
}

// Item is one listing returned by the search API.
type Item struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	SalePrice    *Price     `json:"sale_price,omitempty"`
	BidPrice     *Price     `json:"bid_price,omitempty"`
	Condition    string     `json:"condition,omitempty"`
	ListingKinds []string   `json:"listing_kinds,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	ItemURL      string     `json:"item_url,omitempty"`
}

// IsAuction reports whether the item accepts bids.
func (i *Item) IsAuction() bool {
	return slices.Contains(i.ListingKinds, KindAuction)
}

// SamePrice reports whether both items carry the same sale and bid prices.
// Only prices participate; title and condition drift is ignored. A missing
// price never equals a present one.
func (i *Item) SamePrice(o *Item) bool {
	return pricesEqual(i.SalePrice, o.SalePrice) && pricesEqual(i.BidPrice, o.BidPrice)
}

func pricesEqual(a, b *Price) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// EventKind classifies an observed item against the snapshot.
type EventKind string

// Event kinds.
const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventUnchanged EventKind = "unchanged"
)

// Notifiable reports whether events of this kind are delivered.
func (k EventKind) Notifiable() bool {
	return k == EventCreated || k == EventUpdated
}

// Event is the result of classifying one item. Previous is set only for
// EventUpdated.
type Event struct {
	Kind     EventKind `json:"kind"`
	Item     Item      `json:"item"`
	Previous *Item     `json:"previous,omitempty"`
}

// EventRecord is a delivered (or attempted) event kept for the ops API.
type EventRecord struct {
	Event
	Query      string    `json:"query"`
	ObservedAt time.Time `json:"observed_at"`
	Delivered  bool      `json:"delivered"`
}
