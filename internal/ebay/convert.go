package ebay

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

// ItemID extracts the stable legacy id from a composite Browse API id of
// the form "v1|<id>|<variation>". It reports false when the second
// segment is missing or empty.
func ItemID(composite string) (string, bool) {
	parts := strings.Split(composite, "|")
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ToItems converts item summaries into domain items. Summaries that cannot
// be converted are returned as errors alongside the converted items so the
// caller can log them; they never reach the snapshot.
func ToItems(summaries []ItemSummary) ([]domain.Item, []error) {
	items := make([]domain.Item, 0, len(summaries))
	var skipped []error
	for i := range summaries {
		item, err := ToItem(&summaries[i])
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		items = append(items, item)
	}
	return items, skipped
}

// ToItem converts one item summary.
func ToItem(s *ItemSummary) (domain.Item, error) {
	id, ok := ItemID(s.ItemID)
	if !ok {
		return domain.Item{}, fmt.Errorf("couldn't get item id from %q", s.ItemID)
	}

	item := domain.Item{
		ID:           id,
		Title:        s.Title,
		Condition:    s.Condition,
		ListingKinds: s.BuyingOptions,
		ItemURL:      s.ItemWebURL,
	}

	var err error
	if item.SalePrice, err = toPrice(s.Price); err != nil {
		return domain.Item{}, fmt.Errorf("item %s: parsing price: %w", id, err)
	}
	if item.BidPrice, err = toPrice(s.CurrentBidPrice); err != nil {
		return domain.Item{}, fmt.Errorf("item %s: parsing current bid price: %w", id, err)
	}

	if s.Image != nil && s.Image.ImageURL != "" {
		item.ImageURL = s.Image.ImageURL
	}

	if s.ItemEndDate != "" {
		if t, err := time.Parse(time.RFC3339, s.ItemEndDate); err == nil {
			item.EndTime = &t
		}
	}

	return item, nil
}

func toPrice(p *ItemPrice) (*domain.Price, error) {
	if p == nil {
		return nil, nil
	}
	amount, err := decimal.NewFromString(p.Value)
	if err != nil {
		return nil, err
	}
	return &domain.Price{Amount: amount, Currency: p.Currency}, nil
}
