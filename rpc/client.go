package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"xlend/crypto"
)

// Client calls a node's HTTP API. Mutating calls require a signing key.
type Client struct {
	baseURL string
	http    *http.Client
	key     *crypto.PrivateKey
	now     func() time.Time
}

// APIError is returned when the node answers with a non-2xx status.
type APIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rpc: %d %s: %s", e.Status, e.Code, e.Msg)
}

// NewClient targets baseURL, e.g. "http://127.0.0.1:8080". key may be nil for
// read-only use.
func NewClient(baseURL string, key *crypto.PrivateKey) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		key:     key,
		now:     time.Now,
	}
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if c.key == nil {
		return fmt.Errorf("rpc: %s requires a signing key", path)
	}
	if payload == nil {
		payload = struct{}{}
	}
	env, err := SignEnvelope(c.key, http.MethodPost+" "+path, payload, c.now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("rpc: encode envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rpc: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes))
	if err != nil {
		return fmt.Errorf("rpc: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var body ErrorBody
		if json.Unmarshal(data, &body) == nil && body.Error.Code != "" {
			return &APIError{Status: resp.StatusCode, Code: body.Error.Code, Msg: body.Error.Message}
		}
		return &APIError{Status: resp.StatusCode, Code: "http", Msg: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("rpc: decode response: %w", err)
	}
	return nil
}

func (c *Client) Deposit(ctx context.Context, amount uint64) (Account, error) {
	var out Account
	err := c.post(ctx, "/v1/deposit", AmountRequest{Amount: Quantity(amount)}, &out)
	return out, err
}

func (c *Client) Withdraw(ctx context.Context, amount uint64) (Account, error) {
	var out Account
	err := c.post(ctx, "/v1/withdraw", AmountRequest{Amount: Quantity(amount)}, &out)
	return out, err
}

func (c *Client) PlaceOrder(ctx context.Context, amount, rate uint64) (uint64, error) {
	var out IDResult
	err := c.post(ctx, "/v1/orders", PlaceOrderRequest{Amount: Quantity(amount), Rate: Quantity(rate)}, &out)
	return uint64(out.ID), err
}

func (c *Client) CancelOrder(ctx context.Context, id uint64) error {
	return c.post(ctx, "/v1/orders/"+strconv.FormatUint(id, 10)+"/cancel", nil, nil)
}

func (c *Client) CloseOrder(ctx context.Context, id uint64) error {
	return c.post(ctx, "/v1/orders/"+strconv.FormatUint(id, 10)+"/close", nil, nil)
}

// Attest submits the caller's witness signature over claim.
func (c *Client) Attest(ctx context.Context, claim Claim) (string, error) {
	var out StatusResult
	err := c.post(ctx, "/v1/attestations", AttestRequest{Claim: claim}, &out)
	return out.Status, err
}

func (c *Client) ClearAttestation(ctx context.Context, chainID uint32, lockID uint64) error {
	return c.post(ctx, "/v1/attestations/clear", LockRequest{ChainID: chainID, LockID: Quantity(lockID)}, nil)
}

func (c *Client) Borrow(ctx context.Context, chainID uint32, lockID uint64) (uint64, error) {
	var out IDResult
	err := c.post(ctx, "/v1/borrow", LockRequest{ChainID: chainID, LockID: Quantity(lockID)}, &out)
	return uint64(out.ID), err
}

func (c *Client) Repay(ctx context.Context, receiptID uint64) (Quote, error) {
	var out Quote
	err := c.post(ctx, "/v1/receipts/"+strconv.FormatUint(receiptID, 10)+"/repay", nil, &out)
	return out, err
}

// Liquidate claims an overdue receipt's collateral for receiver, a 0x
// address on the collateral's chain.
func (c *Client) Liquidate(ctx context.Context, receiptID uint64, receiver string) error {
	return c.post(ctx, "/v1/receipts/"+strconv.FormatUint(receiptID, 10)+"/liquidate", LiquidateRequest{Receiver: receiver}, nil)
}

func (c *Client) SetConfig(ctx context.Context, cfg Config) error {
	return c.post(ctx, "/v1/admin/config", cfg, nil)
}

func (c *Client) SetRelayFee(ctx context.Context, chainID uint32, fee uint64) error {
	return c.post(ctx, "/v1/admin/fees", RelayFeeRequest{ChainID: chainID, Fee: Quantity(fee)}, nil)
}

func (c *Client) AddWitness(ctx context.Context, witness string) (Witnesses, error) {
	var out Witnesses
	err := c.post(ctx, "/v1/admin/witnesses/add", WitnessRequest{Witness: witness}, &out)
	return out, err
}

func (c *Client) RemoveWitness(ctx context.Context, witness string) (Witnesses, error) {
	var out Witnesses
	err := c.post(ctx, "/v1/admin/witnesses/remove", WitnessRequest{Witness: witness}, &out)
	return out, err
}

func (c *Client) Order(ctx context.Context, id uint64) (Order, error) {
	var out Order
	err := c.get(ctx, "/v1/orders/"+strconv.FormatUint(id, 10), &out)
	return out, err
}

func (c *Client) Receipt(ctx context.Context, id uint64) (Receipt, error) {
	var out Receipt
	err := c.get(ctx, "/v1/receipts/"+strconv.FormatUint(id, 10), &out)
	return out, err
}

func (c *Client) Quote(ctx context.Context, id uint64) (Quote, error) {
	var out Quote
	err := c.get(ctx, "/v1/receipts/"+strconv.FormatUint(id, 10)+"/quote", &out)
	return out, err
}

func (c *Client) Attestation(ctx context.Context, chainID uint32, lockID uint64) (Attestation, error) {
	var out Attestation
	path := fmt.Sprintf("/v1/attestations/%d/%d", chainID, lockID)
	err := c.get(ctx, path, &out)
	return out, err
}

func (c *Client) Witnesses(ctx context.Context) (Witnesses, error) {
	var out Witnesses
	err := c.get(ctx, "/v1/witnesses", &out)
	return out, err
}

func (c *Client) Config(ctx context.Context) (ConfigResult, error) {
	var out ConfigResult
	err := c.get(ctx, "/v1/config", &out)
	return out, err
}

func (c *Client) RelayFee(ctx context.Context, chainID uint32) (RelayFee, error) {
	var out RelayFee
	err := c.get(ctx, fmt.Sprintf("/v1/relay-fees/%d", chainID), &out)
	return out, err
}

func (c *Client) Account(ctx context.Context, addr string) (Account, error) {
	var out Account
	err := c.get(ctx, "/v1/accounts/"+url.PathEscape(addr), &out)
	return out, err
}

// Events returns up to limit events with a sequence greater than after.
func (c *Client) Events(ctx context.Context, after uint64, limit int) (EventsResult, error) {
	var out EventsResult
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	err := c.get(ctx, "/v1/events?"+q.Encode(), &out)
	return out, err
}
