package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dappnode/staking-pool-manager/internal/application/ports"
)

// LedgerAdapter implements ports.LedgerPort against the share ledger service
// keeping the pool's ownership bookkeeping.
type LedgerAdapter struct {
	BaseURL string
	client  *http.Client
}

func NewLedgerAdapter(baseURL string) ports.LedgerPort {
	return &LedgerAdapter{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type mintRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type totalSharesResponse struct {
	Total string `json:"total"`
}

// MintShares credits the account for a deposited asset amount; the ledger
// converts to shares at its current price.
func (l *LedgerAdapter) MintShares(ctx context.Context, account common.Address, amount *big.Int) error {
	return l.postMint(ctx, "/api/v1/shares/mint", account, amount)
}

// MintRawShares credits raw ownership units with no conversion.
func (l *LedgerAdapter) MintRawShares(ctx context.Context, account common.Address, rawAmount *big.Int) error {
	return l.postMint(ctx, "/api/v1/shares/mint-raw", account, rawAmount)
}

func (l *LedgerAdapter) postMint(ctx context.Context, path string, account common.Address, amount *big.Int) error {
	body, err := json.Marshal(mintRequest{Account: account.Hex(), Amount: amount.String()})
	if err != nil {
		return fmt.Errorf("failed to marshal mint request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create mint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending mint request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected ledger status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// TotalShares returns the ledger's total supply of ownership units.
func (l *LedgerAdapter) TotalShares(ctx context.Context) (*big.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.BaseURL+"/api/v1/shares/total", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create total shares request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending total shares request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected ledger status %d: %s", resp.StatusCode, string(respBody))
	}

	var result totalSharesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding total shares response: %w", err)
	}
	total, ok := new(big.Int).SetString(result.Total, 10)
	if !ok {
		return nil, fmt.Errorf("ledger returned invalid total shares %q", result.Total)
	}
	return total, nil
}
