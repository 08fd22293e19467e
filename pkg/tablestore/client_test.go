package tablestore_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/position-sync/pkg/emulator"
	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
)

func TestClient_QueryAll(t *testing.T) {
	srv := emulator.NewTestServer(t)
	srv.CreateDatabase(t, "positions", map[string]tablestore.PropertySchema{
		"Code":  {Type: tablestore.TypeRichText},
		"BuyId": {Type: tablestore.TypeRichText},
	})
	client := srv.Client(3)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		code := "0700"
		if i%2 == 1 {
			code = "0005"
		}
		_, err := client.CreatePage(ctx, "positions", tablestore.Properties{
			"Code":  tablestore.TextProp(code),
			"BuyId": tablestore.TextProp(fmt.Sprintf("b%d", i)),
		})
		require.NoError(t, err)
	}

	pages, err := client.QueryAll(ctx, "positions", nil)
	require.NoError(t, err)
	require.Len(t, pages, 8)
	for i, p := range pages {
		id, _ := p.Text("BuyId")
		assert.Equal(t, fmt.Sprintf("b%d", i), id)
	}

	f := tablestore.TextEquals("Code", "0005")
	pages, err = client.QueryAll(ctx, "positions", &f)
	require.NoError(t, err)
	assert.Len(t, pages, 4)
}

func TestClient_APIError(t *testing.T) {
	srv := emulator.NewTestServer(t)
	ctx := context.Background()

	_, err := srv.Client(0).GetDatabase(ctx, "missing")
	var apiErr *tablestore.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "object_not_found", apiErr.Code)

	unauthorized := tablestore.NewClient(tablestore.ClientConfig{APIURL: srv.URL, Token: "wrong"})
	_, err = unauthorized.QueryAll(ctx, "missing", nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "unauthorized", apiErr.Code)
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := tablestore.NewClient(tablestore.ClientConfig{APIURL: server.URL, Token: "t"})
	_, err := client.GetDatabase(context.Background(), "db")

	var apiErr *tablestore.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestClient_Headers(t *testing.T) {
	var auth, version string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		version = r.Header.Get("Notion-Version")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"database","id":"db","properties":{}}`))
	}))
	defer server.Close()

	client := tablestore.NewClient(tablestore.ClientConfig{APIURL: server.URL + "/", Token: "secret", Version: "2022-06-28"})
	db, err := client.GetDatabase(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, "db", db.ID)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "2022-06-28", version)
}
