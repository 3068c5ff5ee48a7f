package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"membership-api/internal/models"
	"membership-api/pkg/logging"

	"github.com/sony/gobreaker/v2"
)

// Paystack transaction statuses the reconciler cares about.
const (
	StatusSuccess = "success"
	StatusPending = "pending"
)

// PaymentProvider is the external processor.
type PaymentProvider interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*models.PaystackTransaction, error)
	VerifySignature(body []byte, signature string) bool
}

// InitializeRequest describes a new checkout.
type InitializeRequest struct {
	Email            string
	AmountMinorUnits int64
	Currency         string
	Reference        string
	CallbackURL      string
	Metadata         models.PaystackMetadata
}

// InitializeResult carries the hosted checkout page.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// PaystackClient talks to the Paystack REST API. Transport failures, 5xx
// answers and timeouts surface as ErrProviderUnreachable, and a circuit
// breaker stops calling an API that keeps failing.
type PaystackClient struct {
	baseURL    string
	secretKey  string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewPaystackClient creates a client. timeout bounds every call.
func NewPaystackClient(baseURL, secretKey string, timeout time.Duration) *PaystackClient {
	settings := gobreaker.Settings{
		Name:        "paystack",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warnf("Circuit breaker %s changed from %s to %s", name, from.String(), to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrProviderUnreachable)
		},
	}
	return &PaystackClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		timeout:    timeout,
		httpClient: &http.Client{},
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize creates a transaction and returns the authorization URL.
func (c *PaystackClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body := map[string]any{
		"email":     req.Email,
		"amount":    req.AmountMinorUnits,
		"currency":  req.Currency,
		"reference": req.Reference,
		"metadata":  req.Metadata,
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initialize request: %w", err)
	}

	env, err := c.call(ctx, http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("paystack initialize rejected: %s", env.Message)
	}

	var result InitializeResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode initialize response: %w", err)
	}
	if result.AuthorizationURL == "" {
		return nil, errors.New("paystack initialize returned no authorization url")
	}
	return &result, nil
}

// Verify looks a transaction up by reference. A reference the provider does
// not know comes back as a transaction with status "failed".
func (c *PaystackClient) Verify(ctx context.Context, reference string) (*models.PaystackTransaction, error) {
	env, err := c.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return &models.PaystackTransaction{Reference: reference, Status: "failed"}, nil
	}

	var tx models.PaystackTransaction
	if err := json.Unmarshal(env.Data, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}
	if tx.Reference == "" {
		tx.Reference = reference
	}
	return &tx, nil
}

// VerifySignature checks the x-paystack-signature header: hex HMAC-SHA512 of
// the raw body keyed with the secret key.
func (c *PaystackClient) VerifySignature(body []byte, signature string) bool {
	if signature == "" || c.secretKey == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (c *PaystackClient) call(ctx context.Context, method, path string, payload []byte) (*paystackEnvelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, method, path, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	if err != nil {
		return nil, err
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode paystack response: %w", err)
	}
	return &env, nil
}

func (c *PaystackClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnreachable, resp.StatusCode)
	}
	return data, nil
}
