package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
	"github.com/dappnode/staking-pool-manager/internal/application/ports"
)

// Notifier implements ports.NotifierPort by posting audit events to the
// notification service.
type Notifier struct {
	BaseURL    string
	Network    string
	HTTPClient *http.Client
}

func NewNotifier(baseURL, network string) ports.NotifierPort {
	return &Notifier{
		BaseURL:    baseURL,
		Network:    network,
		HTTPClient: &http.Client{Timeout: 3 * time.Second},
	}
}

type Priority string

const (
	Low  Priority = "low"
	Info Priority = "info"
	High Priority = "high"
)

type NotificationPayload struct {
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	Category      string    `json:"category"`
	Priority      *Priority `json:"priority,omitempty"`
	CorrelationId *string   `json:"correlationId,omitempty"`
}

func (n *Notifier) sendNotification(payload NotificationPayload) error {
	url := fmt.Sprintf("%s/api/v1/notifications", n.BaseURL)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification failed with status: %s", resp.Status)
	}
	return nil
}

// SendOperatorFundedNot publishes an operator funded-count change.
func (n *Notifier) SendOperatorFundedNot(ev domain.OperatorFundedEvent) error {
	priority := Info
	correlationId := "operator-funded"
	payload := NotificationPayload{
		Title:         fmt.Sprintf("Operator Funded: %s", ev.Name),
		Body:          fmt.Sprintf("Operator %s now has %d funded stake slots on %s.", ev.Name, ev.NewFunded, n.Network),
		Category:      "staking",
		Priority:      &priority,
		CorrelationId: &correlationId,
	}
	return n.sendNotification(payload)
}

// SendEarningsDistributedNot publishes one reward distribution round.
func (n *Notifier) SendEarningsDistributedNot(ev domain.EarningsDistributedEvent) error {
	priority := Info
	correlationId := "earnings-distributed"
	payload := NotificationPayload{
		Title: "Earnings Distributed",
		Body: fmt.Sprintf("Distributed %s wei of earnings on %s: %s shares minted, %s to operators, %s to treasury.",
			ev.Amount, n.Network, ev.SharesToMint, ev.OperatorRewards, ev.TreasuryShares),
		Category:      "staking",
		Priority:      &priority,
		CorrelationId: &correlationId,
	}
	return n.sendNotification(payload)
}
