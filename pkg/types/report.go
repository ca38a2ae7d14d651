package domain

import "time"

// StatusReport is the ops API view of the poll loop.
type StatusReport struct {
	State          string    `json:"state"           example:"cycling"`
	Cycle          uint64    `json:"cycle"           example:"42"`
	CycleID        string    `json:"cycle_id,omitempty"`
	Queries        []string  `json:"queries"`
	SnapshotMode   string    `json:"snapshot_mode"   example:"records"`
	SnapshotSize   int       `json:"snapshot_size"`
	StartedAt      time.Time `json:"started_at"`
	LastCycleAt    time.Time `json:"last_cycle_at,omitzero"`
	LastDurationMS int64     `json:"last_duration_ms"`
	NextCycleAt    time.Time `json:"next_cycle_at,omitzero"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitzero"`
	LastCreated    int       `json:"last_created"`
	LastUpdated    int       `json:"last_updated"`
	LastUnchanged  int       `json:"last_unchanged"`
	FailedQueries  []string  `json:"failed_queries,omitempty"`
	TotalCreated   uint64    `json:"total_created"`
	TotalUpdated   uint64    `json:"total_updated"`
}

// ItemReport is an Item with prices rendered as "<amount> <currency>".
type ItemReport struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	SalePrice    string     `json:"sale_price,omitempty" example:"90.00 USD"`
	BidPrice     string     `json:"bid_price,omitempty"`
	Condition    string     `json:"condition,omitempty"`
	ListingKinds []string   `json:"listing_kinds,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	ItemURL      string     `json:"item_url,omitempty"`
}

// NewItemReport flattens an Item for display.
func NewItemReport(it *Item) ItemReport {
	r := ItemReport{
		ID:           it.ID,
		Title:        it.Title,
		Condition:    it.Condition,
		ListingKinds: it.ListingKinds,
		EndTime:      it.EndTime,
		ItemURL:      it.ItemURL,
	}
	if it.SalePrice != nil {
		r.SalePrice = it.SalePrice.String()
	}
	if it.BidPrice != nil {
		r.BidPrice = it.BidPrice.String()
	}
	return r
}

// EventReport is the ops API view of an EventRecord.
type EventReport struct {
	Kind       EventKind   `json:"kind"        example:"updated"`
	Query      string      `json:"query"`
	ObservedAt time.Time   `json:"observed_at"`
	Delivered  bool        `json:"delivered"`
	Item       ItemReport  `json:"item"`
	Previous   *ItemReport `json:"previous,omitempty"`
}

// NewEventReport flattens an EventRecord for display.
func NewEventReport(rec *EventRecord) EventReport {
	r := EventReport{
		Kind:       rec.Kind,
		Query:      rec.Query,
		ObservedAt: rec.ObservedAt,
		Delivered:  rec.Delivered,
		Item:       NewItemReport(&rec.Item),
	}
	if rec.Previous != nil {
		prev := NewItemReport(rec.Previous)
		r.Previous = &prev
	}
	return r
}
