package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

type NominatimClient struct {
	*BaseClient
	baseURL      string
	countryCodes string
}

func NewNominatimClient(baseURL, countryCodes string, config ClientConfig, logger *zap.Logger) *NominatimClient {
	return &NominatimClient{
		BaseClient:   NewBaseClient("nominatim", config, logger),
		baseURL:      strings.TrimRight(baseURL, "/"),
		countryCodes: countryCodes,
	}
}

// Geocode returns the raw attributes of the best match for query, or nil when
// Nominatim has no result.
func (c *NominatimClient) Geocode(ctx context.Context, query string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}

	endpoint := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("nominatim search %q: %w", query, err)
	}

	var results []map[string]interface{}
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decoding nominatim response: %w", err)
	}

	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}
