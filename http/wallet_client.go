// Package http provides HTTP implementations of lockerd's external
// collaborators, currently the phoenixd-compatible wallet client.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/satslock/lockerd"
)

// ============================================================================
// HTTP Wallet Client
// ============================================================================

// HTTPWalletClient talks to a phoenixd-compatible wallet daemon over HTTP.
// Implements lockerd.WalletClient.
type HTTPWalletClient struct {
	url        string
	httpClient *http.Client
	password   string
}

// WalletConfig configures the HTTP wallet client
type WalletConfig struct {
	// URL is the base URL of the wallet daemon
	URL string

	// Password is the daemon's HTTP access password (basic auth with an
	// empty username)
	Password string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration
}

// DefaultWalletURL is the wallet daemon's default local address
const DefaultWalletURL = "http://127.0.0.1:9740"

// NewHTTPWalletClient creates a new HTTP wallet client
func NewHTTPWalletClient(config *WalletConfig) *HTTPWalletClient {
	if config == nil {
		config = &WalletConfig{}
	}

	baseURL := config.URL
	if baseURL == "" {
		baseURL = DefaultWalletURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &HTTPWalletClient{
		url:        strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		password:   config.Password,
	}
}

// createInvoiceResponse is the daemon's createinvoice reply
type createInvoiceResponse struct {
	AmountSat   int64  `json:"amountSat"`
	PaymentHash string `json:"paymentHash"`
	Serialized  string `json:"serialized"`
}

// incomingPaymentResponse is the daemon's payment lookup reply
type incomingPaymentResponse struct {
	PaymentHash string `json:"paymentHash"`
	IsPaid      bool   `json:"isPaid"`
	ReceivedSat int64  `json:"receivedSat"`
}

// CreateInvoice asks the daemon for a new invoice over amountSats
func (c *HTTPWalletClient) CreateInvoice(ctx context.Context, amountSats int64, description string) (*lockerd.Invoice, error) {
	form := url.Values{}
	form.Set("amountSat", strconv.FormatInt(amountSats, 10))
	form.Set("description", description)

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/createinvoice", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("", c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, lockerd.Errorf(lockerd.ErrCodeWalletUnavailable, "wallet unreachable: %v", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, lockerd.Errorf(lockerd.ErrCodeWalletUnavailable, "failed to read wallet response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, lockerd.Errorf(lockerd.ErrCodeWalletError,
			"wallet rejected invoice creation (%d): %s", resp.StatusCode, string(responseBody))
	}

	var created createInvoiceResponse
	if err := json.Unmarshal(responseBody, &created); err != nil {
		return nil, lockerd.Errorf(lockerd.ErrCodeWalletError, "failed to decode invoice response: %v", err)
	}
	if created.PaymentHash == "" || created.Serialized == "" {
		return nil, lockerd.NewError(lockerd.ErrCodeWalletError, "wallet returned an incomplete invoice")
	}

	return &lockerd.Invoice{
		PaymentHash:    created.PaymentHash,
		EncodedInvoice: created.Serialized,
		AmountSats:     amountSats,
		Status:         lockerd.InvoicePending,
	}, nil
}

// GetPaymentStatus polls the daemon for the settlement state of an invoice.
// An unknown hash maps to PaymentUnknown rather than an error; the caller
// decides how to surface the ambiguity.
func (c *HTTPWalletClient) GetPaymentStatus(ctx context.Context, paymentHash string) (lockerd.PaymentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/payments/incoming/"+url.PathEscape(paymentHash), nil)
	if err != nil {
		return lockerd.PaymentUnknown, fmt.Errorf("failed to create payment lookup request: %w", err)
	}
	req.SetBasicAuth("", c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return lockerd.PaymentUnknown, lockerd.Errorf(lockerd.ErrCodeWalletUnavailable, "wallet unreachable: %v", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return lockerd.PaymentUnknown, lockerd.Errorf(lockerd.ErrCodeWalletUnavailable, "failed to read wallet response: %v", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return lockerd.PaymentUnknown, nil
	}
	if resp.StatusCode != http.StatusOK {
		return lockerd.PaymentUnknown, lockerd.Errorf(lockerd.ErrCodeWalletError,
			"wallet payment lookup failed (%d): %s", resp.StatusCode, string(responseBody))
	}

	var payment incomingPaymentResponse
	if err := json.Unmarshal(responseBody, &payment); err != nil {
		return lockerd.PaymentUnknown, lockerd.Errorf(lockerd.ErrCodeWalletError, "failed to decode payment response: %v", err)
	}

	if payment.IsPaid {
		return lockerd.PaymentSettled, nil
	}
	return lockerd.PaymentPending, nil
}

// Ping verifies the daemon is reachable and the credential is accepted.
// Used for the fail-fast startup check.
func (c *HTTPWalletClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/getinfo", nil)
	if err != nil {
		return fmt.Errorf("failed to create getinfo request: %w", err)
	}
	req.SetBasicAuth("", c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return lockerd.Errorf(lockerd.ErrCodeWalletUnavailable, "wallet unreachable: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return lockerd.Errorf(lockerd.ErrCodeWalletError, "wallet getinfo failed (%d)", resp.StatusCode)
	}
	return nil
}
