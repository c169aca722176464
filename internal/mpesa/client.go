package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus" // Logging library
)

// nairobi is the gateway's reference timezone for push-password timestamps.
var nairobi = time.FixedZone("EAT", 3*60*60)

// Client talks to the M-Pesa Daraja gateway. It caches a single bearer token
// and refreshes it ahead of expiry; safe for concurrent callers.
type Client struct {
	BaseURL        string // Gateway base URL
	Shortcode      string // Merchant business shortcode
	Passkey        string // Shared passkey for push passwords
	ConsumerKey    string // OAuth consumer key
	ConsumerSecret string // OAuth consumer secret
	CallbackURL    string // Publicly reachable webhook URL
	HTTPClient     *http.Client

	safetyMargin time.Duration    // Refresh tokens this close to expiry
	now          func() time.Time // Clock, replaceable in tests

	mu          sync.Mutex // Guards the token slot; held across a refresh
	token       string     // Cached bearer token
	tokenExpiry time.Time  // Absolute expiry of the cached token
}

// NewClient creates a gateway client with the given credentials.
func NewClient(baseURL, shortcode, passkey, consumerKey, consumerSecret, callbackURL string, timeout, safetyMargin time.Duration) *Client {
	return &Client{
		BaseURL:        baseURL,
		Shortcode:      shortcode,
		Passkey:        passkey,
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		CallbackURL:    callbackURL,
		HTTPClient:     &http.Client{Timeout: timeout},
		safetyMargin:   safetyMargin,
		now:            time.Now,
	}
}

// Token returns a valid bearer token, performing a credential exchange when
// no token is cached or the cached one is within the safety margin of expiry.
// The mutex is held across the refresh so concurrent callers share one
// in-flight exchange instead of stampeding the gateway.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Reuse the cached token while it is comfortably inside its lifetime
	if c.token != "" && c.now().Add(c.safetyMargin).Before(c.tokenExpiry) {
		return c.token, nil
	}

	url := c.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.ConsumerKey, c.ConsumerSecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GatewayError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		// Invalidate the slot so the next call retries the exchange
		c.token = ""
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// ExpiresIn arrives as a string of seconds; convert to absolute time now
	seconds, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3599
	}
	c.token = tr.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(seconds) * time.Second)

	logrus.WithField("expires_in", seconds).Info("M-Pesa access token refreshed")
	return c.token, nil
}

// Password derives the push password for the given instant: the base64
// encoding of shortcode + passkey + timestamp, with the timestamp in
// YYYYMMDDHHMMSS form in the gateway's timezone.
func (c *Client) Password(at time.Time) (password, timestamp string) {
	timestamp = at.In(nairobi).Format("20060102150405")
	password = base64.StdEncoding.EncodeToString([]byte(c.Shortcode + c.Passkey + timestamp))
	return password, timestamp
}

// STKPush submits a push payment request and returns the gateway's
// correlation ids. The phone number must already be normalized.
func (c *Client) STKPush(ctx context.Context, phone string, amount int64, accountRef, description string) (*STKPushResponse, error) {
	password, timestamp := c.Password(c.now())
	payload := STKPushRequest{
		BusinessShortCode: c.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       c.CallbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   description,
	}

	var out STKPushResponse
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", payload, &out); err != nil {
		return nil, err
	}
	// The gateway can answer 200 with a non-zero ResponseCode; treat it as a rejection
	if out.ResponseCode != "0" {
		return nil, &GatewayError{StatusCode: http.StatusOK, Code: out.ResponseCode, Description: out.ResponseDescription}
	}
	return &out, nil
}

// STKQuery asks the gateway for the current outcome of a push request. The
// password is re-derived with the current timestamp; the query endpoint does
// not accept the one computed at push time. Returns ErrStillProcessing while
// the payer has not yet acted on the prompt.
func (c *Client) STKQuery(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	password, timestamp := c.Password(c.now())
	payload := STKQueryRequest{
		BusinessShortCode: c.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var out STKQueryResponse
	if err := c.post(ctx, "/mpesa/stkpushquery/v1/query", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// stillProcessingCode is the gateway error code meaning the push has not yet
// resolved; the query endpoint delivers it with a 500 status.
const stillProcessingCode = "500.001.1001"

// post sends an authenticated JSON request to the gateway and decodes the
// response into out, translating error bodies into the client's error types.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Expired or revoked token; drop it so the next call re-authenticates
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
	}
	if resp.StatusCode != http.StatusOK {
		var ge gatewayError
		_ = json.Unmarshal(respBody, &ge)
		if ge.ErrorCode == stillProcessingCode {
			return ErrStillProcessing
		}
		if ge.ErrorMessage == "" {
			ge.ErrorMessage = string(respBody)
		}
		return &GatewayError{StatusCode: resp.StatusCode, Code: ge.ErrorCode, Description: ge.ErrorMessage}
	}

	return json.Unmarshal(respBody, out)
}
