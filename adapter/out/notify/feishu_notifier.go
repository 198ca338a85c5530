// Package notify pushes run results to a Feishu group webhook as interactive
// cards.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/pkg/logger"
)

// sendPacing spaces webhook posts so the bot rate limit is never hit.
const sendPacing = 500 * time.Millisecond

// summaryMediumLimit caps how many medium-priority items the summary card
// lists.
const summaryMediumLimit = 5

// FeishuNotifier sends top candidates as cards plus one run summary card.
type FeishuNotifier struct {
	webhookURL string
	secret     string
	history    out.NotificationHistory
	topK       int
	maxRepeats int
	client     *http.Client
	log        *logger.Logger
	now        func() time.Time
}

// NewFeishuNotifier creates a notifier. history may be nil to disable repeat
// suppression.
func NewFeishuNotifier(webhookURL, secret string, history out.NotificationHistory, topK, maxRepeats int, client *http.Client, log *logger.Logger) *FeishuNotifier {
	if topK <= 0 {
		topK = 3
	}
	if maxRepeats <= 0 {
		maxRepeats = 3
	}
	if log == nil {
		log = logger.Default()
	}
	return &FeishuNotifier{
		webhookURL: webhookURL,
		secret:     secret,
		history:    history,
		topK:       topK,
		maxRepeats: maxRepeats,
		client:     client,
		log:        log,
		now:        time.Now,
	}
}

var _ out.Notifier = (*FeishuNotifier)(nil)

// Notify sends up to topK high-priority candidate cards and a summary card,
// returning the candidates that were actually pushed.
func (n *FeishuNotifier) Notify(ctx context.Context, candidates []domain.ScoredCandidate, stats out.RunStats) ([]domain.ScoredCandidate, error) {
	if n.webhookURL == "" {
		n.log.WithStage("notify").Info("webhook not configured, skipping notifications")
		return nil, nil
	}

	fresh := n.filterSuppressed(ctx, candidates)

	high := make([]domain.ScoredCandidate, 0, len(fresh))
	medium := make([]domain.ScoredCandidate, 0, len(fresh))
	for _, c := range fresh {
		switch c.Priority() {
		case domain.PriorityHigh:
			high = append(high, c)
		case domain.PriorityMedium:
			medium = append(medium, c)
		}
	}
	sort.SliceStable(high, func(i, j int) bool { return high[i].TotalScore() > high[j].TotalScore() })
	sort.SliceStable(medium, func(i, j int) bool { return medium[i].TotalScore() > medium[j].TotalScore() })

	top := high
	if len(top) > n.topK {
		top = top[:n.topK]
	}

	var notified []domain.ScoredCandidate
	for _, c := range top {
		if err := n.sendCard(ctx, n.candidateCard(c)); err != nil {
			n.log.WithStage("notify").WithError(err).Warn("candidate card failed: %s", c.Title)
			continue
		}
		notified = append(notified, c)
		select {
		case <-ctx.Done():
			return notified, ctx.Err()
		case <-time.After(sendPacing):
		}
	}

	if err := n.sendCard(ctx, n.summaryCard(stats, top, medium, candidates)); err != nil {
		return notified, fmt.Errorf("summary card: %w", err)
	}

	n.log.WithStage("notify").Info("notifications sent: %d candidate cards + summary", len(notified))
	return notified, nil
}

// filterSuppressed drops candidates already notified maxRepeats times.
func (n *FeishuNotifier) filterSuppressed(ctx context.Context, candidates []domain.ScoredCandidate) []domain.ScoredCandidate {
	if n.history == nil {
		return candidates
	}
	kept := make([]domain.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		count, err := n.history.NotifyCount(ctx, c.URL)
		if err != nil {
			n.log.WithStage("notify").WithError(err).Warn("history lookup failed: %s", c.URL)
			kept = append(kept, c)
			continue
		}
		if count >= n.maxRepeats {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

type webhookPayload struct {
	Timestamp string         `json:"timestamp,omitempty"`
	Sign      string         `json:"sign,omitempty"`
	MsgType   string         `json:"msg_type"`
	Card      map[string]any `json:"card"`
}

type webhookResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (n *FeishuNotifier) sendCard(ctx context.Context, card map[string]any) error {
	payload := webhookPayload{MsgType: "interactive", Card: card}
	if n.secret != "" {
		timestamp := strconv.FormatInt(n.now().Unix(), 10)
		payload.Timestamp = timestamp
		payload.Sign = Sign(timestamp, n.secret)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("webhook response unreadable: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("webhook rejected: code=%d msg=%s", result.Code, result.Msg)
	}
	return nil
}

// Sign computes the Feishu bot signature: HMAC-SHA256 keyed on
// "timestamp\nsecret" over an empty message, base64 encoded.
func Sign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(timestamp+"\n"+secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
