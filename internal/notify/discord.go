package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shogo82148/go-retry"

	"github.com/donaldgifford/listing-watcher/internal/metrics"
	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

const (
	colorAuction = 0xE76F51
	colorListing = 0x264653

	// DefaultUsername is the webhook display name.
	DefaultUsername = "Watcher"
	// DefaultAvatarURL is the webhook avatar and footer icon.
	DefaultAvatarURL = "https://i.pinimg.com/564x/d8/c1/58/d8c15881c29b6ccd441cefeecbf8d7bc.jpg"

	footerText        = "Ebay Watcher"
	itemURLPrefix     = "https://www.ebay.com/itm/"
	noBidPriceText    = "couldn't get bid price info :("
	unknownText       = "Unknown"
	defaultTimeout    = 10 * time.Second
	maxTitleRunes     = 256
	maxContentRunes   = 2000
	maxErrorBodyBytes = 1 << 10
	// maxRetryAfter caps how long a rate-limit hint may stall delivery.
	maxRetryAfter = 30 * time.Second
)

// DiscordNotifier implements Notifier via a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	username   string
	avatarURL  string
	client     *http.Client
	log        *slog.Logger
	policy     retry.Policy
}

// NewDiscordNotifier creates a new DiscordNotifier.
func NewDiscordNotifier(webhookURL string, opts ...DiscordOption) *DiscordNotifier {
	d := &DiscordNotifier{
		webhookURL: webhookURL,
		username:   DefaultUsername,
		avatarURL:  DefaultAvatarURL,
		client:     &http.Client{Timeout: defaultTimeout},
		log:        slog.Default(),
		policy: retry.Policy{
			MinDelay: 500 * time.Millisecond,
			MaxDelay: 5 * time.Second,
			MaxCount: 3,
			Jitter:   100 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DiscordOption configures a DiscordNotifier.
type DiscordOption func(*DiscordNotifier)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) DiscordOption {
	return func(d *DiscordNotifier) {
		d.client = c
	}
}

// WithUsername overrides the webhook display name.
func WithUsername(name string) DiscordOption {
	return func(d *DiscordNotifier) {
		if name != "" {
			d.username = name
		}
	}
}

// WithAvatarURL overrides the webhook avatar.
func WithAvatarURL(u string) DiscordOption {
	return func(d *DiscordNotifier) {
		if u != "" {
			d.avatarURL = u
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) DiscordOption {
	return func(d *DiscordNotifier) {
		d.log = l
	}
}

// WithRetryPolicy replaces the policy used for 429 and 5xx responses.
func WithRetryPolicy(p retry.Policy) DiscordOption {
	return func(d *DiscordNotifier) {
		d.policy = p
	}
}

type webhookPayload struct {
	Content   string  `json:"content,omitempty"`
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []embed `json:"embeds,omitempty"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Image       *embedImage  `json:"image,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

// StatusError is a non-2xx webhook response. RetryAfter is the wait
// Discord asked for on a 429, zero when absent.
type StatusError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Status == http.StatusTooManyRequests {
		return "discord rate limited (429)"
	}
	if e.Body == "" {
		return fmt.Sprintf("discord returned %d", e.Status)
	}
	return fmt.Sprintf("discord returned %d: %s", e.Status, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Notify sends one item event as a Discord embed.
func (d *DiscordNotifier) Notify(
	ctx context.Context,
	kind domain.EventKind,
	item *domain.Item,
	prev *domain.Item,
) error {
	payload := webhookPayload{
		Username:  d.username,
		AvatarURL: d.avatarURL,
		Embeds:    []embed{d.buildEmbed(kind, item, prev)},
	}
	return d.post(ctx, payload)
}

// SendMessage posts plain text.
func (d *DiscordNotifier) SendMessage(ctx context.Context, text string) error {
	payload := webhookPayload{
		Content:   truncate(text, maxContentRunes),
		Username:  d.username,
		AvatarURL: d.avatarURL,
	}
	return d.post(ctx, payload)
}

func (d *DiscordNotifier) buildEmbed(kind domain.EventKind, item, prev *domain.Item) embed {
	e := embed{
		Title:  truncate(item.Title, maxTitleRunes),
		Color:  colorListing,
		Footer: &embedFooter{Text: footerText, IconURL: d.avatarURL},
	}
	if item.ID != "" {
		e.URL = itemURLPrefix + item.ID
	}
	if item.ImageURL != "" {
		e.Image = &embedImage{URL: item.ImageURL}
	}
	switch kind {
	case domain.EventCreated:
		e.Description = "New listing"
	case domain.EventUpdated:
		e.Description = "Price changed"
	}

	if item.IsAuction() {
		e.Color = colorAuction

		var prevBid *domain.Price
		if prev != nil {
			prevBid = prev.BidPrice
		}
		current := priceChange(prevBid, item.BidPrice)
		if current == "" {
			current = noBidPriceText
		}
		e.Fields = append(e.Fields, embedField{Name: "Current Price", Value: current})

		if item.EndTime != nil {
			e.Fields = append(e.Fields, embedField{
				Name:  "Ends in",
				Value: fmt.Sprintf("<t:%d:R>", item.EndTime.Unix()),
			})
		}
	}

	var prevSale *domain.Price
	if prev != nil {
		prevSale = prev.SalePrice
	}
	if bin := priceChange(prevSale, item.SalePrice); bin != "" {
		e.Fields = append(e.Fields, embedField{Name: "BIN Price", Value: bin})
	}

	condition := item.Condition
	if condition == "" {
		condition = unknownText
	}
	kinds := strings.Join(item.ListingKinds, ", ")
	if kinds == "" {
		kinds = unknownText
	}
	e.Fields = append(e.Fields,
		embedField{Name: "Condition", Value: condition},
		embedField{Name: "Listing Type", Value: kinds},
	)

	return e
}

// priceChange renders "old -> new" when both prices exist and differ, the
// current price when only it exists, and "" otherwise.
func priceChange(prev, cur *domain.Price) string {
	switch {
	case cur == nil:
		return ""
	case prev != nil && !prev.Equal(*cur):
		return prev.String() + " -> " + cur.String()
	default:
		return cur.String()
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func (d *DiscordNotifier) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}

	start := time.Now()
	defer func() {
		metrics.NotificationDuration.Observe(time.Since(start).Seconds())
	}()

	retrier := d.policy.Start(ctx)
	var attempt int
	for retrier.Continue() {
		attempt++
		err = d.send(ctx, body)
		var se *StatusError
		if err == nil || !errors.As(err, &se) || !se.retryable() {
			return err
		}
		if d.policy.MaxCount > 0 && attempt >= d.policy.MaxCount {
			break
		}
		if se.RetryAfter > maxRetryAfter {
			return err
		}
		d.log.Warn("discord delivery failed, retrying",
			"attempt", attempt, "status", se.Status, "retry_after", se.RetryAfter)
		if serr := sleepContext(ctx, se.RetryAfter); serr != nil {
			return err
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}

func (d *DiscordNotifier) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		d.webhookURL,
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("creating discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	se := &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	if resp.StatusCode == http.StatusTooManyRequests {
		se.RetryAfter = retryAfter(resp.Header)
	}
	return se
}

// retryAfter reads the rate-limit wait in seconds from Retry-After, or from
// X-RateLimit-Reset-After which Discord sends with fractional seconds.
func retryAfter(h http.Header) time.Duration {
	for _, key := range []string{"Retry-After", "X-RateLimit-Reset-After"} {
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			continue
		}
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs <= 0 {
			continue
		}
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
