package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/busticketing/config"
	"github.com/Domenick1991/busticketing/internal/domain"
)

// Status is what the provider reports for a transaction. The provider is
// untrusted and at-least-once; callers must re-query it instead of trusting
// any status relayed by a client.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusPending   Status = "PENDING"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

type InitiateResponse struct {
	PaymentURL    string
	TransactionID string
}

type VerifyResponse struct {
	Status      Status
	AmountMinor int64
	// Metadata echoes whatever was attached at initiation time. Used as a
	// fallback when the initiation was never recorded locally.
	Metadata []byte
}

// Client is the narrow boundary to the external payment provider.
type Client interface {
	Initiate(ctx context.Context, amountMinor int64, returnURL, orderRef string, metadata []byte) (*InitiateResponse, error)
	Verify(ctx context.Context, transactionID string) (*VerifyResponse, error)
}

type HTTPClient struct {
	baseURL    string
	merchantID string
	secretKey  string
	http       *http.Client
}

func NewHTTPClient(cfg config.GatewayConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		merchantID: cfg.MerchantID,
		secretKey:  cfg.SecretKey,
		http:       &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

type initiateRequest struct {
	MerchantID  string          `json:"merchant_id"`
	AmountMinor int64           `json:"amount"`
	ReturnURL   string          `json:"return_url"`
	OrderRef    string          `json:"order_ref"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

type initiateResponse struct {
	PaymentURL    string `json:"payment_url"`
	TransactionID string `json:"transaction_id"`
}

type verifyResponse struct {
	Status      string          `json:"status"`
	AmountMinor int64           `json:"amount"`
	Metadata    json.RawMessage `json:"metadata"`
}

func (c *HTTPClient) Initiate(ctx context.Context, amountMinor int64, returnURL, orderRef string, metadata []byte) (*InitiateResponse, error) {
	body, err := json.Marshal(initiateRequest{
		MerchantID:  c.merchantID,
		AmountMinor: amountMinor,
		ReturnURL:   returnURL,
		OrderRef:    orderRef,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, &domain.GatewayError{Op: "initiate", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, &domain.GatewayError{Op: "initiate", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{Op: "initiate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &domain.GatewayError{Op: "initiate", Err: fmt.Errorf("provider returned %d", resp.StatusCode)}
	}

	var out initiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &domain.GatewayError{Op: "initiate", Err: err}
	}
	if out.TransactionID == "" {
		return nil, &domain.GatewayError{Op: "initiate", Err: fmt.Errorf("provider returned empty transaction id")}
	}

	return &InitiateResponse{PaymentURL: out.PaymentURL, TransactionID: out.TransactionID}, nil
}

func (c *HTTPClient) Verify(ctx context.Context, transactionID string) (*VerifyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+transactionID, nil)
	if err != nil {
		return nil, &domain.GatewayError{Op: "verify", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{Op: "verify", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.GatewayError{Op: "verify", Err: fmt.Errorf("provider returned %d", resp.StatusCode)}
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &domain.GatewayError{Op: "verify", Err: err}
	}

	return &VerifyResponse{
		Status:      normalizeStatus(out.Status),
		AmountMinor: out.AmountMinor,
		Metadata:    out.Metadata,
	}, nil
}

// normalizeStatus folds the provider's free-form status strings into the
// closed set the engine works with.
func normalizeStatus(s string) Status {
	switch Status(s) {
	case StatusCompleted, StatusPending, StatusFailed, StatusCancelled:
		return Status(s)
	}
	switch s {
	case "Completed", "completed", "SUCCESS", "success":
		return StatusCompleted
	case "Pending", "pending", "IN_PROGRESS":
		return StatusPending
	case "Cancelled", "cancelled", "CANCELED":
		return StatusCancelled
	default:
		return StatusFailed
	}
}

var _ Client = (*HTTPClient)(nil)
