package ebay

// ItemSummary represents a single item from the eBay Browse API search response.
type ItemSummary struct {
	ItemID          string     `json:"itemId"`
	Title           string     `json:"title"`
	Price           *ItemPrice `json:"price,omitempty"`
	CurrentBidPrice *ItemPrice `json:"currentBidPrice,omitempty"`
	ItemWebURL      string     `json:"itemWebUrl,omitempty"`
	Image           *ItemImage `json:"image,omitempty"`
	Condition       string     `json:"condition,omitempty"`
	BuyingOptions   []string   `json:"buyingOptions"`
	ItemEndDate     string     `json:"itemEndDate,omitempty"`
}

// ItemPrice holds eBay price information.
type ItemPrice struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// ItemImage holds eBay image information.
type ItemImage struct {
	ImageURL string `json:"imageUrl"`
}

type browseAPIResponse struct {
	ItemSummaries []ItemSummary `json:"itemSummaries"`
	Total         int           `json:"total"`
	Limit         int           `json:"limit"`
}
