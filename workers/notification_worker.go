// workers/notification_worker.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"referral-ledger/services"
	"referral-ledger/utils"
)

// NoticeSender delivers one reward notice to the outside world
type NoticeSender interface {
	Send(ctx context.Context, notice services.RewardNotice) error
}

// NotificationDispatcher decouples reward issuance from delivery.
// Notify never blocks; notices that do not fit the buffer are dropped and logged.
type NotificationDispatcher struct {
	noticeCh chan services.RewardNotice
	sender   NoticeSender
	log      *zap.Logger
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewNotificationDispatcher(sender NoticeSender, bufferSize int, log *zap.Logger) *NotificationDispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NotificationDispatcher{
		noticeCh: make(chan services.RewardNotice, bufferSize),
		sender:   sender,
		log:      log.Named("notifier"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (d *NotificationDispatcher) Start() {
	d.wg.Go(func() {
		for {
			select {
			case <-d.ctx.Done():
				d.log.Info("draining reward notices before shutdown", zap.Int("remaining", len(d.noticeCh)))
				for len(d.noticeCh) > 0 {
					d.deliver(context.Background(), <-d.noticeCh)
				}
				return
			case notice := <-d.noticeCh:
				d.deliver(d.ctx, notice)
			}
		}
	})
}

func (d *NotificationDispatcher) deliver(ctx context.Context, notice services.RewardNotice) {
	if err := d.sender.Send(ctx, notice); err != nil {
		d.log.Error("reward notice delivery failed",
			zap.String("referral_id", notice.ReferralID),
			zap.Error(err),
		)
	}
}

// Notify implements services.RewardNotifier
func (d *NotificationDispatcher) Notify(notice services.RewardNotice) {
	select {
	case d.noticeCh <- notice:
	default:
		d.log.Warn("notice channel full, dropping reward notice", zap.String("referral_id", notice.ReferralID))
	}
}

// Shutdown stops the loop after delivering whatever is still buffered
func (d *NotificationDispatcher) Shutdown() {
	d.cancel()
	d.wg.Wait()
}

// FormatNotice renders the human-readable line sent along with a notice
func FormatNotice(p *message.Printer, n services.RewardNotice) string {
	msg := p.Sprintf("Referral %s credited: %s to %s", n.ReferralID, n.ReferrerReward.StringFixed(2), n.ReferrerAccountID)
	if n.ReferredAccountID != "" {
		msg += p.Sprintf(", %s to %s", n.ReferredReward.StringFixed(2), n.ReferredAccountID)
	}
	for _, m := range n.MilestoneBonuses {
		msg += p.Sprintf("; milestone %s bonus %s", m.Threshold, m.Bonus.StringFixed(2))
	}
	return msg
}

// NewPrinter builds a message printer for a BCP 47 tag, falling back to English
func NewPrinter(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

type webhookPayload struct {
	Event   string                `json:"event"`
	Message string                `json:"message"`
	Notice  services.RewardNotice `json:"notice"`
}

// WebhookSender POSTs notices as JSON to a downstream notification service
type WebhookSender struct {
	URL     string
	Token   string
	Client  *http.Client
	Printer *message.Printer
}

func NewWebhookSender(url, token string, timeout time.Duration, locale string) *WebhookSender {
	return &WebhookSender{
		URL:     url,
		Token:   token,
		Client:  utils.NewHTTPClient(timeout),
		Printer: NewPrinter(locale),
	}
}

func (s *WebhookSender) Send(ctx context.Context, notice services.RewardNotice) error {
	body, err := json.Marshal(webhookPayload{
		Event:   "referral.reward_issued",
		Message: FormatNotice(s.Printer, notice),
		Notice:  notice,
	})
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post notice: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification webhook returned %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}

// LogSender writes notices to the log when no webhook is configured
type LogSender struct {
	Log     *zap.Logger
	Printer *message.Printer
}

func (s *LogSender) Send(_ context.Context, notice services.RewardNotice) error {
	s.Log.Info(FormatNotice(s.Printer, notice),
		zap.String("referral_id", notice.ReferralID),
		zap.String("referrer_account_id", notice.ReferrerAccountID),
	)
	return nil
}
