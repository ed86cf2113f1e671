// workers/conversion_feed_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"referral-ledger/services"
	"referral-ledger/utils"
)

// Conversion is one "this referral converted" event from the upstream event source
type Conversion struct {
	ReferralID  string    `json:"referral_id"`
	ConvertedAt time.Time `json:"converted_at"`
}

// Issuer is the part of RewardService the poller needs
type Issuer interface {
	Issue(ctx context.Context, referralID string) (*services.IssueResult, error)
}

// ConversionFeedClient pulls conversions from the event source
type ConversionFeedClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewConversionFeedClient(baseURL, token string, timeout time.Duration) *ConversionFeedClient {
	return &ConversionFeedClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.NewHTTPClient(timeout),
	}
}

func (c *ConversionFeedClient) GetConversions(ctx context.Context, since time.Time) ([]Conversion, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/conversions", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call conversion feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("conversion feed returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Conversions []Conversion `json:"conversions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode conversion feed response: %w", err)
	}
	return response.Conversions, nil
}

// ConversionFeedPoller turns polled conversions into Issue calls.
// Issue is idempotent, so overlapping windows only produce already-credited results.
type ConversionFeedPoller struct {
	Client *ConversionFeedClient
	Issuer Issuer
	Log    *zap.Logger

	lastSync time.Time
}

func NewConversionFeedPoller(client *ConversionFeedClient, issuer Issuer, log *zap.Logger) *ConversionFeedPoller {
	return &ConversionFeedPoller{
		Client:   client,
		Issuer:   issuer,
		Log:      log.Named("conversion_feed"),
		lastSync: time.Now().UTC().Add(-24 * time.Hour),
	}
}

// Run polls until ctx is cancelled
func (p *ConversionFeedPoller) Run(ctx context.Context, interval time.Duration) {
	p.Log.Info("conversion feed polling started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Log.Info("conversion feed polling stopped")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches one window. The window only advances when every conversion in it
// was issued or already credited; otherwise the same window is retried next tick.
func (p *ConversionFeedPoller) PollOnce(ctx context.Context) {
	pollTime := time.Now().UTC()

	conversions, err := p.Client.GetConversions(ctx, p.lastSync)
	if err != nil {
		p.Log.Error("conversion feed poll failed", zap.Error(err))
		return
	}

	failed := 0
	issued := 0
	for _, conv := range conversions {
		result, err := p.Issuer.Issue(ctx, conv.ReferralID)
		switch {
		case err == nil && !result.AlreadyCredited:
			issued++
		case err == nil:
		case services.ErrorCode(err) == services.ErrNotFound.Code:
			p.Log.Warn("conversion for unknown referral", zap.String("referral_id", conv.ReferralID))
		default:
			failed++
			p.Log.Error("conversion not issued",
				zap.String("referral_id", conv.ReferralID),
				zap.String("code", services.ErrorCode(err)),
				zap.Error(err),
			)
		}
	}

	if failed > 0 {
		return
	}
	p.lastSync = pollTime
	if len(conversions) > 0 {
		p.Log.Info("conversion feed processed", zap.Int("received", len(conversions)), zap.Int("issued", issued))
	}
}

// LastSync is the start of the next poll window
func (p *ConversionFeedPoller) LastSync() time.Time {
	return p.lastSync
}
