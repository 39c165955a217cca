package elastic_search

import (
	"context"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/event"
	"github.com/olivere/elastic/v7"
	"github.com/stretchr/testify/require"
)

const (
	collection = "0x1111111111111111111111111111111111111111"
	seller     = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	buyer      = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func listed(sequence uint64, price int64) entity.Event {
	return entity.Event{
		Sequence:   sequence,
		Type:       entity.ItemListed,
		Collection: collection,
		AssetId:    3,
		Seller:     seller,
		Price:      big.NewInt(price),
		Time:       time.Now(),
	}
}

func TestAddEventBuffersListing(t *testing.T) {
	i := NewIndex(nil, "false", 0)

	i.AddEvent(listed(1, 100000000000))

	require.Len(t, i.GetRequests(), 2)

	req := i.GetRequest(ListingIndex.Get(), entity.CreateListingSlug(collection, 3))
	require.NotNil(t, req)
	require.Equal(t, IndexRequest, req.Type)

	doc := req.Entity.(ListingDocument)
	require.Equal(t, "100000000000", doc.PriceQa)
	require.Equal(t, "0.1", doc.Price)
	require.Equal(t, seller, doc.Seller)
}

func TestLaterRequestReplacesPendingOne(t *testing.T) {
	i := NewIndex(nil, "false", 0)

	i.AddEvent(listed(1, 5))
	i.AddEvent(bought(2))

	// two event documents, one listing document
	require.Len(t, i.GetRequests(), 3)

	req := i.GetRequest(ListingIndex.Get(), entity.CreateListingSlug(collection, 3))
	require.NotNil(t, req)
	require.Equal(t, DeleteRequest, req.Type)
	require.True(t, i.HasRequest(EventIndex.Get(), NewEventDocument(listed(1, 5))))
}

func bought(sequence uint64) entity.Event {
	return entity.Event{
		Sequence:   sequence,
		Type:       entity.ItemBought,
		Collection: collection,
		AssetId:    3,
		Seller:     seller,
		Buyer:      buyer,
		Price:      big.NewInt(5),
		Time:       time.Now(),
	}
}

func TestOlderEventDoesNotReplacePendingListing(t *testing.T) {
	i := NewIndex(nil, "false", 0)

	i.AddEvent(bought(2))
	i.AddEvent(listed(1, 5))

	req := i.GetRequest(ListingIndex.Get(), entity.CreateListingSlug(collection, 3))
	require.NotNil(t, req)
	require.Equal(t, DeleteRequest, req.Type)
	require.Equal(t, int64(2), req.Version)
}

func TestPersistSendsExternalVersionsAndSkipsStaleWrites(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"took":1,"errors":true,"items":[
			{"index":{"_index":"`+EventIndex.Get()+`","_id":"x","status":201}},
			{"index":{"_index":"`+ListingIndex.Get()+`","_id":"`+entity.CreateListingSlug(collection, 3)+`","status":409,
				"error":{"type":"version_conflict_engine_exception","reason":"stale"}}}
		]}`)
	}))
	defer server.Close()

	client, err := elastic.NewClient(elastic.SetURL(server.URL), elastic.SetSniff(false), elastic.SetHealthcheck(false))
	require.NoError(t, err)

	i := NewIndex(client, "false", 0)
	i.AddEvent(listed(7, 5))

	actions, err := i.Persist(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, actions)
	require.Empty(t, i.GetRequests())

	require.True(t, strings.Contains(body, `"version":7`), body)
	require.True(t, strings.Contains(body, `"version_type":"external"`), body)
}

func TestWithdrawalOnlyIndexesEvent(t *testing.T) {
	i := NewIndex(nil, "false", 0)

	i.AddEvent(entity.Event{Sequence: 9, Type: entity.ProceedsWithdrawn, Seller: seller, Price: big.NewInt(5), Time: time.Now()})

	requests := i.GetRequests()
	require.Len(t, requests, 1)
	require.Equal(t, EventIndex.Get(), requests[0].Index)
}

func TestPersistWithoutClient(t *testing.T) {
	i := NewIndex(nil, "false", 0)

	actions, err := i.Persist(context.Background())
	require.NoError(t, err)
	require.Zero(t, actions)

	i.AddEvent(listed(1, 5))
	_, err = i.Persist(context.Background())
	require.ErrorIs(t, err, ErrNoClient)
	require.Len(t, i.GetRequests(), 2, "requests are kept for the next attempt")

	require.False(t, i.BatchPersist(context.Background()))

	i.ClearRequests()
	require.Empty(t, i.GetRequests())
}

func TestListenBuffersPublishedEvents(t *testing.T) {
	i := NewIndex(nil, "false", 0)
	manager := event.NewManager()
	i.Listen(manager)

	manager.EmitEvent(event.ItemListedEvent, listed(1, 5))
	manager.EmitEvent(event.ItemListedEvent, "not an event")
	manager.Close()

	require.Len(t, i.GetRequests(), 2)
}

func TestIndexNames(t *testing.T) {
	require.Equal(t, "zilliqa.marketplace.event", EventIndex.Get())
	require.Equal(t, "zilliqa.marketplace.listing", ListingIndex.Get())
}
