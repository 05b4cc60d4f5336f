package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks to the platform's JSON gateway
type HTTPClient struct {
	BaseURL    string
	CustomerID string
	HTTPClient *http.Client
}

// NewHTTPClient returns a gateway client. Authentication is the job of
// httpClient (e.g. an oauth2 client); nil uses a client with a 30s timeout.
func NewHTTPClient(baseURL, customerID string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		BaseURL:    baseURL,
		CustomerID: customerID,
		HTTPClient: httpClient,
	}
}

var _ Platform = (*HTTPClient)(nil)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		return errors.New("platform base_url is required")
	}
	if strings.TrimSpace(c.CustomerID) == "" {
		return errors.New("platform customer_id is required")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	url := fmt.Sprintf("%s/v1/customers/%s/%s", baseURL, c.CustomerID, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			apiErr.Code = eb.Error.Code
			apiErr.Message = eb.Error.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// LookupCampaigns implements Platform
func (c *HTTPClient) LookupCampaigns(ctx context.Context, names []string) ([]Campaign, error) {
	var out struct {
		Campaigns []Campaign `json:"campaigns"`
	}
	err := c.post(ctx, "campaigns:lookup", map[string]any{"names": names}, &out)
	return out.Campaigns, err
}

// ListAssetGroups implements Platform
func (c *HTTPClient) ListAssetGroups(ctx context.Context, campaignIDs []string) ([]AssetGroup, error) {
	var out struct {
		AssetGroups []AssetGroup `json:"asset_groups"`
	}
	err := c.post(ctx, "assetGroups:list", map[string]any{"campaign_ids": campaignIDs, "status": "ENABLED"}, &out)
	return out.AssetGroups, err
}

// ListLinks implements Platform
func (c *HTTPClient) ListLinks(ctx context.Context, groupResources []string, fieldTypes []string) ([]Link, error) {
	var out struct {
		Links []Link `json:"links"`
	}
	err := c.post(ctx, "assetGroupAssets:list", map[string]any{
		"asset_groups": groupResources,
		"field_types":  fieldTypes,
		"status":       "ENABLED",
		"source":       "ADVERTISER",
	}, &out)
	return out.Links, err
}

// AssetDetails implements Platform
func (c *HTTPClient) AssetDetails(ctx context.Context, ids []string) ([]Asset, error) {
	var out struct {
		Assets []Asset `json:"assets"`
	}
	err := c.post(ctx, "assets:get", map[string]any{"ids": ids}, &out)
	return out.Assets, err
}

// FindTextAsset implements Platform
func (c *HTTPClient) FindTextAsset(ctx context.Context, text string) (string, error) {
	var out struct {
		Resource string `json:"resource"`
	}
	err := c.post(ctx, "assets:findText", map[string]any{"text": text}, &out)
	return out.Resource, err
}

// Mutate implements Platform
func (c *HTTPClient) Mutate(ctx context.Context, m Mutation) (string, error) {
	var out struct {
		Resource string `json:"resource"`
		Error    string `json:"error"`
	}
	if err := c.post(ctx, "mutate", m, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", &MutationError{Message: out.Error}
	}
	return out.Resource, nil
}
