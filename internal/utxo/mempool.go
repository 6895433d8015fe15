package utxo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrAddressNotFound mirrors the explorer's 404 for an address with no
// history.
var ErrAddressNotFound = errors.New("utxo: address not found")

// MainnetExplorerURL and TestnetExplorerURL are the default
// mempool.space-compatible endpoints used when no override backend is
// configured.
const (
	MainnetExplorerURL = "https://mempool.space/api"
	TestnetExplorerURL = "https://mempool.space/testnet/api"
)

// NetworkSource queries a live mempool.space-compatible block explorer. It
// satisfies Source, giving the CLI a working UTXO backing with no override
// list supplied.
type NetworkSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewNetworkSource builds a NetworkSource against baseURL (trailing slash
// trimmed).
func NewNetworkSource(baseURL string) *NetworkSource {
	return &NetworkSource{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type explorerUTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Status struct {
		Confirmed bool `json:"confirmed"`
	} `json:"status"`
	Value int64 `json:"value"`
}

// Find queries <baseURL>/address/<address>/utxo and applies the same
// fee-band and strictness rule as OverrideSource.
func (n *NetworkSource) Find(ctx context.Context, address string, stake, minFee, maxFee int64, strict bool) (*UTXO, error) {
	var raw []explorerUTXO
	if err := n.get(ctx, "/address/"+address+"/utxo", &raw); err != nil {
		return nil, err
	}

	var candidates []UTXO
	for _, u := range raw {
		if !u.Status.Confirmed {
			continue
		}
		if !inBand(u.Value, stake, minFee, maxFee) {
			continue
		}
		candidates = append(candidates, UTXO{
			Address: address,
			TxID:    u.TxID,
			Vout:    u.Vout,
			Value:   u.Value,
		})
	}

	return selectCandidate(candidates, strict), nil
}

func (n *NetworkSource) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("utxo: build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("utxo: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrAddressNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("utxo: explorer returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("utxo: decode response: %w", err)
	}
	return nil
}
