package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"mobileshop/internal/config"
)

// Capture states reported by the provider when queried by transaction id.
const (
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// ProcessRequest carries one capture attempt. TransactionID is the
// idempotency key: submitting the same id twice must not double-charge.
type ProcessRequest struct {
	TransactionID string            `json:"transaction_id"`
	Method        string            `json:"method"`
	Amount        int64             `json:"amount"`
	OrderNo       string            `json:"order_no"`
	Extra         map[string]string `json:"extra,omitempty"`
}

type RefundRequest struct {
	TransactionID string `json:"transaction_id"`
	ProviderTxnID string `json:"provider_txn_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}

// Result is a definitive provider answer. Success=false is a decline, not
// a transport failure; transport failures come back as errors and are the
// only thing worth retrying.
type Result struct {
	Success       bool   `json:"success"`
	ProviderTxnID string `json:"provider_txn_id"`
	ReceiptURL    string `json:"receipt_url"`
	Reason        string `json:"reason"`
}

// Status is the provider's view of a transaction, used by reconciliation.
type Status struct {
	State  string `json:"state"`
	Result Result `json:"result"`
}

// Gateway abstracts the payment provider across the supported methods.
type Gateway interface {
	Process(ctx context.Context, req *ProcessRequest) (*Result, error)
	Refund(ctx context.Context, req *RefundRequest) (*Result, error)
	Status(ctx context.Context, transactionID string) (*Status, error)
}

type httpGateway struct {
	client    *http.Client
	baseURL   string
	endpoints map[string]string
}

// NewHTTPGateway talks JSON over HTTP to the provider endpoints from
// config. Each payment method may route to its own base URL.
func NewHTTPGateway(cfg *config.GatewayConfig) Gateway {
	return &httpGateway{
		client:    &http.Client{Timeout: cfg.Timeout()},
		baseURL:   cfg.BaseURL,
		endpoints: cfg.Endpoints,
	}
}

func (g *httpGateway) endpointFor(method string) string {
	if url, ok := g.endpoints[method]; ok {
		return url
	}
	return g.baseURL
}

func (g *httpGateway) Process(ctx context.Context, req *ProcessRequest) (*Result, error) {
	var result Result
	url := g.endpointFor(req.Method) + "/v1/payments"
	if err := g.post(ctx, url, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *httpGateway) Refund(ctx context.Context, req *RefundRequest) (*Result, error) {
	var result Result
	url := g.baseURL + "/v1/refunds"
	if err := g.post(ctx, url, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *httpGateway) Status(ctx context.Context, transactionID string) (*Status, error) {
	url := fmt.Sprintf("%s/v1/payments/%s", g.baseURL, transactionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway status query: unexpected status %d", resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (g *httpGateway) post(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("gateway call: upstream status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
