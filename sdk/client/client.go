package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"runclub/crypto"
	"runclub/gateway/auth"
)

var ErrNoSigner = errors.New("client: signing key required")

// APIError is returned for non-2xx gateway responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("runclubd %d: %s", e.Status, e.Message)
}

// Client wraps the runclubd REST endpoints. Mutating calls are signed with
// the configured key.
type Client struct {
	baseURL     *url.URL
	key         *crypto.PrivateKey
	oracleToken string
	httpClient  *http.Client
	now         func() time.Time
}

// Option mutates the client configuration during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithClock overrides the time source used when signing requests. Primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSigner sets the key used to sign mutating requests.
func WithSigner(key *crypto.PrivateKey) Option {
	return func(c *Client) { c.key = key }
}

// WithOracleToken sets the bearer token presented on KM accrual.
func WithOracleToken(token string) Option {
	return func(c *Client) { c.oracleToken = strings.TrimSpace(token) }
}

// New constructs a client pointed at the supplied base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, fmt.Errorf("baseURL required")
	}
	parsed, err := url.Parse(trimmedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Address returns the signer's address, or "" without a key.
func (c *Client) Address() string {
	if c.key == nil {
		return ""
	}
	return c.key.PubKey().Address().String()
}

type Club struct {
	ID                uint64   `json:"id"`
	Name              string   `json:"name"`
	Organizer         string   `json:"organizer"`
	Members           []string `json:"members"`
	USDCDeposited     string   `json:"usdcDeposited"`
	USDCPerKm         string   `json:"usdcPerKm"`
	WithdrawalRule    string   `json:"withdrawalRule"`
	MonthEndTimestamp uint64   `json:"monthEndTimestamp"`
	IsActive          bool     `json:"isActive"`
}

type RedemptionInfo struct {
	ClubID          uint64 `json:"clubId"`
	User            string `json:"user"`
	KmBalance       string `json:"kmBalance"`
	ProjectedReward string `json:"projectedReward"`
	PeriodEnded     bool   `json:"periodEnded"`
}

type Event struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	ClubID     *uint64           `json:"clubId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// CreateClub registers a club organised by the signer.
func (c *Client) CreateClub(ctx context.Context, name string, usdcPerKm *big.Int, rule string, durationDays uint32) (uint64, error) {
	payload := map[string]any{
		"name":           name,
		"usdcPerKm":      amount(usdcPerKm),
		"withdrawalRule": rule,
		"durationDays":   durationDays,
	}
	var resp struct {
		ClubID uint64 `json:"clubId"`
	}
	if err := c.signed(ctx, http.MethodPost, "/clubs", payload, &resp); err != nil {
		return 0, err
	}
	return resp.ClubID, nil
}

func (c *Client) ActivateClub(ctx context.Context, clubID uint64) error {
	return c.signed(ctx, http.MethodPost, clubPath(clubID, "activate"), nil, nil)
}

// Deposit funds the club pool from the signer's balance.
func (c *Client) Deposit(ctx context.Context, clubID uint64, value *big.Int) error {
	return c.signed(ctx, http.MethodPost, clubPath(clubID, "deposit"), map[string]string{"amount": amount(value)}, nil)
}

func (c *Client) RemoveClub(ctx context.Context, clubID uint64) error {
	return c.signed(ctx, http.MethodDelete, clubPath(clubID), nil, nil)
}

// JoinClub enrols the signer.
func (c *Client) JoinClub(ctx context.Context, clubID uint64) error {
	return c.signed(ctx, http.MethodPost, clubPath(clubID, "members"), nil, nil)
}

func (c *Client) RemoveMember(ctx context.Context, clubID uint64, member string) error {
	return c.signed(ctx, http.MethodDelete, clubPath(clubID, "members", member), nil, nil)
}

// Redeem pays the signer's reward to destination, or to the signer when
// destination is empty.
func (c *Client) Redeem(ctx context.Context, clubID uint64, destination string) (*big.Int, error) {
	var payload any
	if strings.TrimSpace(destination) != "" {
		payload = map[string]string{"destination": destination}
	}
	var resp struct {
		Reward string `json:"reward"`
	}
	if err := c.signed(ctx, http.MethodPost, clubPath(clubID, "redeem"), payload, &resp); err != nil {
		return nil, err
	}
	return parseAmount(resp.Reward)
}

// AddKm credits KM tokens. Requires an oracle token.
func (c *Client) AddKm(ctx context.Context, clubID uint64, user string, value *big.Int) (*big.Int, error) {
	if c.oracleToken == "" {
		return nil, errors.New("client: oracle token required")
	}
	var resp struct {
		Balance string `json:"balance"`
	}
	payload := map[string]string{"user": user, "amount": amount(value)}
	if err := c.do(ctx, http.MethodPost, clubPath(clubID, "km"), payload, &resp, false); err != nil {
		return nil, err
	}
	return parseAmount(resp.Balance)
}

func (c *Client) Club(ctx context.Context, clubID uint64) (*Club, error) {
	var resp struct {
		Club Club `json:"club"`
	}
	if err := c.get(ctx, clubPath(clubID), &resp); err != nil {
		return nil, err
	}
	return &resp.Club, nil
}

func (c *Client) Clubs(ctx context.Context, activeOnly bool) ([]Club, error) {
	path := "/clubs"
	if activeOnly {
		path += "?active=true"
	}
	var resp struct {
		Clubs []Club `json:"clubs"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Clubs, nil
}

func (c *Client) Members(ctx context.Context, clubID uint64) ([]string, error) {
	var resp struct {
		Members []string `json:"members"`
	}
	if err := c.get(ctx, clubPath(clubID, "members"), &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

func (c *Client) KmBalance(ctx context.Context, clubID uint64, user string) (*big.Int, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := c.get(ctx, clubPath(clubID, "km", user), &resp); err != nil {
		return nil, err
	}
	return parseAmount(resp.Balance)
}

func (c *Client) TotalKm(ctx context.Context, clubID uint64) (*big.Int, error) {
	var resp struct {
		Total string `json:"total"`
	}
	if err := c.get(ctx, clubPath(clubID, "km"), &resp); err != nil {
		return nil, err
	}
	return parseAmount(resp.Total)
}

func (c *Client) Reward(ctx context.Context, clubID uint64, user string) (*big.Int, error) {
	var resp struct {
		Reward string `json:"reward"`
	}
	if err := c.get(ctx, clubPath(clubID, "rewards", user), &resp); err != nil {
		return nil, err
	}
	return parseAmount(resp.Reward)
}

func (c *Client) RedemptionInfo(ctx context.Context, clubID uint64, user string) (*RedemptionInfo, error) {
	var resp RedemptionInfo
	if err := c.get(ctx, clubPath(clubID, "redemption", user), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) MemberClubs(ctx context.Context, member string) ([]uint64, error) {
	var resp struct {
		ClubIDs []uint64 `json:"clubIds"`
	}
	if err := c.get(ctx, "/members/"+url.PathEscape(member)+"/clubs", &resp); err != nil {
		return nil, err
	}
	return resp.ClubIDs, nil
}

func (c *Client) ClubEvents(ctx context.Context, clubID uint64, after uint64, limit int) ([]Event, error) {
	query := url.Values{}
	if after > 0 {
		query.Set("after", strconv.FormatUint(after, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := clubPath(clubID, "events")
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp struct {
		Events []Event `json:"events"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) Balance(ctx context.Context, addr string) (*big.Int, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := c.get(ctx, "/tokens/balance/"+url.PathEscape(addr), &resp); err != nil {
		return nil, err
	}
	return parseAmount(resp.Balance)
}

func (c *Client) Transfer(ctx context.Context, to string, value *big.Int) error {
	return c.signed(ctx, http.MethodPost, "/tokens/transfer", map[string]string{"to": to, "amount": amount(value)}, nil)
}

// Mint issues new supply. The signer must be the token admin.
func (c *Client) Mint(ctx context.Context, to string, value *big.Int) error {
	return c.signed(ctx, http.MethodPost, "/tokens/mint", map[string]string{"to": to, "amount": amount(value)}, nil)
}

func (c *Client) Burn(ctx context.Context, value *big.Int) error {
	return c.signed(ctx, http.MethodPost, "/tokens/burn", map[string]string{"amount": amount(value)}, nil)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out, false)
}

func (c *Client) signed(ctx context.Context, method, endpoint string, payload any, out any) error {
	if c.key == nil {
		return ErrNoSigner
	}
	return c.do(ctx, method, endpoint, payload, out, true)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any, out any, sign bool) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = encoded
	}
	rel, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	target := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sign {
		if err := auth.SignRequest(req, body, c.key, c.now()); err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
	}
	if c.oracleToken != "" && !sign {
		req.Header.Set("Authorization", "Bearer "+c.oracleToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(bodyBytes)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

func clubPath(clubID uint64, parts ...string) string {
	segments := []string{"/clubs", strconv.FormatUint(clubID, 10)}
	for _, part := range parts {
		segments = append(segments, url.PathEscape(part))
	}
	return strings.Join(segments, "/")
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q in response", raw)
	}
	return v, nil
}
