package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type WhopConfig struct {
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration
}

// WhopFactory constructs company-scoped Whop clients. One factory per
// process; one client per call site that needs a company's view of the API.
type WhopFactory struct {
	cfg    WhopConfig
	client *http.Client
}

func NewWhopFactory(cfg WhopConfig) *WhopFactory {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.whop.com"
	}

	return &WhopFactory{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (f *WhopFactory) ClientFor(companyID string) Client {
	return &whopClient{
		cfg:       f.cfg,
		client:    f.client,
		companyID: strings.TrimSpace(companyID),
	}
}

type whopClient struct {
	cfg       WhopConfig
	client    *http.Client
	companyID string
}

func (c *whopClient) CreateCheckout(ctx context.Context, input *CheckoutInput) (*CheckoutSession, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errors.New("whop api key is not configured")
	}
	if strings.TrimSpace(input.PlanID) == "" {
		return nil, errors.New("plan id is required for checkout")
	}

	payload := map[string]interface{}{
		"plan_id":  input.PlanID,
		"metadata": input.Metadata,
	}
	body, err := c.postJSON(ctx, "/v5/checkout_sessions", payload)
	if err != nil {
		return nil, err
	}

	var session struct {
		ID          string `json:"id"`
		PurchaseURL string `json:"purchase_url"`
		PlanID      string `json:"plan_id"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, err
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, errors.New("whop checkout session id missing")
	}

	return &CheckoutSession{
		ID:     strings.TrimSpace(session.ID),
		URL:    strings.TrimSpace(session.PurchaseURL),
		PlanID: strings.TrimSpace(session.PlanID),
	}, nil
}

func (c *whopClient) ListReceipts(ctx context.Context, query ReceiptQuery) ([]Receipt, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errors.New("whop api key is not configured")
	}

	values := url.Values{}
	if c.companyID != "" {
		values.Set("company_id", c.companyID)
	}
	if query.PlanID != "" {
		values.Set("plan_id", query.PlanID)
	}
	if query.Status != "" {
		values.Set("status", query.Status)
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	values.Set("per", strconv.FormatInt(int64(pageSize), 10))

	body, err := c.getJSON(ctx, "/v5/company/receipts?"+values.Encode())
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data []struct {
			ID        string      `json:"id"`
			Status    string      `json:"status"`
			PlanID    string      `json:"plan_id"`
			Plan      interface{} `json:"plan"`
			UserID    string      `json:"user_id"`
			Member    interface{} `json:"member"`
			CreatedAt int64       `json:"created_at"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	receipts := make([]Receipt, 0, len(payload.Data))
	for _, item := range payload.Data {
		planID := strings.TrimSpace(item.PlanID)
		if planID == "" {
			planID = parseStringish(item.Plan)
		}
		buyerID := strings.TrimSpace(item.UserID)
		if buyerID == "" {
			buyerID = parseStringish(item.Member)
		}
		receipts = append(receipts, Receipt{
			ID:        strings.TrimSpace(item.ID),
			BuyerID:   buyerID,
			PlanID:    planID,
			Status:    strings.TrimSpace(item.Status),
			CreatedAt: time.Unix(item.CreatedAt, 0).UTC(),
		})
	}

	return receipts, nil
}

func (c *whopClient) VerifyUserToken(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("user token is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v5/me", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("whop token verification failed: status=%d", resp.StatusCode)
	}

	var me struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return "", err
	}
	if strings.TrimSpace(me.ID) == "" {
		return "", errors.New("whop token verification returned no user id")
	}

	return strings.TrimSpace(me.ID), nil
}

func (c *whopClient) postJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	c.setAuthHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, path)
}

func (c *whopClient) getJSON(ctx context.Context, pathWithQuery string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+pathWithQuery, nil)
	if err != nil {
		return nil, err
	}
	c.setAuthHeaders(req)

	return c.do(req, pathWithQuery)
}

func (c *whopClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.companyID != "" {
		req.Header.Set("X-Company-ID", c.companyID)
	}
}

func (c *whopClient) do(req *http.Request, path string) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("whop request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

// parseStringish extracts an id from fields that Whop serializes either as a
// plain string or as an expanded object with an "id" key.
func parseStringish(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		for _, key := range []string{"user_id", "id"} {
			if raw, ok := t[key]; ok {
				if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}
	}
	return ""
}
