package tablestore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/position-sync/pkg/emulator"
	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
)

func setupPositions(t *testing.T) (*emulator.TestServer, *tablestore.Client) {
	t.Helper()
	srv := emulator.NewTestServer(t)
	srv.CreateDatabase(t, "positions", map[string]tablestore.PropertySchema{
		"Code":     {Type: tablestore.TypeRichText},
		"BuyId":    {Type: tablestore.TypeRichText},
		"Date":     {Type: tablestore.TypeDate},
		"Quantity": {Type: tablestore.TypeNumber},
		"Target%":  {Type: tablestore.TypeNumber},
	})
	return srv, srv.Client(2)
}

func TestKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []tablestore.KeyField{{Name: "Code", Value: "0700"}, {Name: "BuyId", Value: "b1"}},
		tablestore.Key("Code", "0700", "BuyId", "b1"))
	assert.Panics(t, func() { tablestore.Key("Code") })
}

func TestClient_Upsert(t *testing.T) {
	_, client := setupPositions(t)
	ctx := context.Background()
	key := tablestore.Key("Code", "0700", "BuyId", "b1")

	create := tablestore.Properties{
		"Date":    tablestore.DateProp("2023-01-05"),
		"Target%": tablestore.NumberProp(0.1),
	}

	res, err := client.Upsert(ctx, "positions", key, create, tablestore.Properties{"Quantity": tablestore.NumberProp(5)})
	require.NoError(t, err)
	assert.True(t, res.Created)

	// A hand edited Target% survives later syncs.
	_, err = client.UpdatePage(ctx, res.PageID, tablestore.Properties{"Target%": tablestore.NumberProp(0.3)})
	require.NoError(t, err)

	again, err := client.Upsert(ctx, "positions", key, create, tablestore.Properties{"Quantity": tablestore.NumberProp(3)})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.PageID, again.PageID)

	pages, err := client.FindByKey(ctx, "positions", key)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	qty, _ := pages[0].Number("Quantity")
	assert.Equal(t, 3.0, qty)
	target, _ := pages[0].Number("Target%")
	assert.Equal(t, 0.3, target)
	date, _ := pages[0].Date("Date")
	assert.Equal(t, "2023-01-05", date)
	id, _ := pages[0].Text("BuyId")
	assert.Equal(t, "b1", id)
}

func TestClient_FindByKey_ExactMatch(t *testing.T) {
	_, client := setupPositions(t)
	ctx := context.Background()

	for _, id := range []string{"b1", "b10", "B1"} {
		_, err := client.Upsert(ctx, "positions", tablestore.Key("Code", "0700", "BuyId", id), nil, nil)
		require.NoError(t, err)
	}

	pages, err := client.FindByKey(ctx, "positions", tablestore.Key("Code", "0700", "BuyId", "b1"))
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	_, err = client.FindByKey(ctx, "positions", nil)
	assert.Error(t, err)
}

func TestClient_Upsert_DuplicateKey(t *testing.T) {
	_, client := setupPositions(t)
	ctx := context.Background()
	key := tablestore.Key("Code", "0700", "BuyId", "b1")

	for i := 0; i < 2; i++ {
		_, err := client.CreatePage(ctx, "positions", tablestore.Properties{
			"Code":  tablestore.TextProp("0700"),
			"BuyId": tablestore.TextProp("b1"),
		})
		require.NoError(t, err)
	}

	_, err := client.Upsert(ctx, "positions", key, nil, tablestore.Properties{"Quantity": tablestore.NumberProp(1)})
	var dup *tablestore.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Len(t, dup.PageIDs, 2)
	assert.Contains(t, err.Error(), "2 rows match key Code=0700,BuyId=b1")

	_, err = client.UpdateExisting(ctx, "positions", key, tablestore.Properties{"Quantity": tablestore.NumberProp(0)})
	assert.ErrorAs(t, err, &dup)
}

func TestClient_UpdateExisting(t *testing.T) {
	_, client := setupPositions(t)
	ctx := context.Background()
	key := tablestore.Key("Code", "0700", "BuyId", "b1")

	res, err := client.UpdateExisting(ctx, "positions", key, tablestore.Properties{"Quantity": tablestore.NumberProp(0)})
	require.NoError(t, err)
	assert.Empty(t, res.PageID, "no row is created")

	pages, err := client.QueryAll(ctx, "positions", nil)
	require.NoError(t, err)
	assert.Empty(t, pages)

	created, err := client.Upsert(ctx, "positions", key, nil, tablestore.Properties{"Quantity": tablestore.NumberProp(4)})
	require.NoError(t, err)

	res, err = client.UpdateExisting(ctx, "positions", key, tablestore.Properties{"Quantity": tablestore.NumberProp(0)})
	require.NoError(t, err)
	assert.Equal(t, created.PageID, res.PageID)

	pages, err = client.FindByKey(ctx, "positions", key)
	require.NoError(t, err)
	qty, ok := pages[0].Number("Quantity")
	assert.True(t, ok)
	assert.Equal(t, 0.0, qty)
}
