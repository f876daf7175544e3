package admingate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dappnode/staking-pool-manager/internal/application/ports"
)

// AdminGateAdapter implements ports.AdminGatePort against the access-control
// service deciding who may perform administrative operations.
type AdminGateAdapter struct {
	baseURL string
	client  *http.Client
}

func NewAdminGateAdapter(baseURL string) ports.AdminGatePort {
	return &AdminGateAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 3 * time.Second},
	}
}

type adminResponse struct {
	Admin bool `json:"admin"`
}

// IsAdmin asks the access-control service whether the caller holds the admin
// role. A 404 means the address is unknown to the service, which is simply a
// non-admin.
func (a *AdminGateAdapter) IsAdmin(ctx context.Context, caller common.Address) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/admins/%s", a.baseURL, caller.Hex())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create admin check request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check admin status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("unexpected access control status %d for %s", resp.StatusCode, caller.Hex())
	}

	var result adminResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode admin check response: %w", err)
	}
	return result.Admin, nil
}
