package keystore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dappnode/staking-pool-manager/internal/application/ports"
)

// KeyStoreAdapter implements ports.KeyStorePort against the key material
// service holding each operator's validator key/signature pairs.
type KeyStoreAdapter struct {
	Endpoint string
	client   *http.Client
}

// keysResponse models the expected JSON from /api/v1/operators/{name}/keys
type keysResponse struct {
	Data []struct {
		Pubkey    string `json:"pubkey"`
		Signature string `json:"signature"`
	} `json:"data"`
}

func NewKeyStoreAdapter(endpoint string) ports.KeyStorePort {
	return &KeyStoreAdapter{
		Endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchKeys returns count key/signature pairs for the operator starting at
// the given funded offset, in offset order.
func (k *KeyStoreAdapter) FetchKeys(ctx context.Context, operatorName string, offset, count uint64) ([][]byte, [][]byte, error) {
	endpoint := fmt.Sprintf("%s/api/v1/operators/%s/keys", k.Endpoint, url.PathEscape(operatorName))

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid key store endpoint: %w", err)
	}
	q := u.Query()
	q.Set("offset", strconv.FormatUint(offset, 10))
	q.Set("count", strconv.FormatUint(count, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating key store request: %w", err)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("error sending key store request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, nil, fmt.Errorf("unexpected key store status %d: %s", resp.StatusCode, string(body))
	}

	var keysResp keysResponse
	if err := json.NewDecoder(resp.Body).Decode(&keysResp); err != nil {
		return nil, nil, fmt.Errorf("error decoding key store response: %w", err)
	}

	pubkeys := make([][]byte, 0, len(keysResp.Data))
	signatures := make([][]byte, 0, len(keysResp.Data))
	for _, item := range keysResp.Data {
		pk, err := decodeHex(item.Pubkey)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid pubkey for %s: %w", operatorName, err)
		}
		sig, err := decodeHex(item.Signature)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid signature for %s: %w", operatorName, err)
		}
		pubkeys = append(pubkeys, pk)
		signatures = append(signatures, sig)
	}
	return pubkeys, signatures, nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
