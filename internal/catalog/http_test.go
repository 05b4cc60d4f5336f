package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_LookupCampaigns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/customers/42/campaigns:lookup", r.URL.Path)

		var body struct {
			Names []string `json:"names"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"Summer"}, body.Names)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"campaigns": []Campaign{{ID: "1", Name: "Summer"}},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "42", srv.Client())
	got, err := c.LookupCampaigns(context.Background(), []string{"Summer"})
	require.NoError(t, err)
	assert.Equal(t, []Campaign{{ID: "1", Name: "Summer"}}, got)
}

func TestHTTPClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"RESOURCE_EXHAUSTED","message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "42", nil)
	_, err := c.ListAssetGroups(context.Background(), []string{"1"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "RESOURCE_EXHAUSTED", apiErr.Code)
	assert.True(t, transientQuery.MatchString(err.Error()))
}

func TestHTTPClient_MutationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m Mutation
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		assert.Equal(t, LinkAsset, m.Kind)
		_, _ = w.Write([]byte(`{"error":"CONCURRENT_MODIFICATION"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "42", nil)
	_, err := c.Mutate(context.Background(), Mutation{Kind: LinkAsset, GroupResource: "g", AssetResource: "a", FieldType: "HEADLINE"})

	var mErr *MutationError
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, "CONCURRENT_MODIFICATION", mErr.Message)
}

func TestHTTPClient_RequiresConfig(t *testing.T) {
	_, err := NewHTTPClient("", "42", nil).FindTextAsset(context.Background(), "x")
	assert.Error(t, err)
	_, err = NewHTTPClient("http://localhost", "", nil).FindTextAsset(context.Background(), "x")
	assert.Error(t, err)
}
