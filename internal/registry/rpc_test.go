package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	owner    string
	approved string
	transfer bool
	calls    []rpcRequest
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.calls = append(n.calls, req)

	resp := map[string]interface{}{"id": req.Id, "jsonrpc": jsonrpcVersion}
	switch req.Method {
	case "OwnerOf":
		resp["result"] = n.owner
	case "GetApproved":
		resp["result"] = n.approved
	case "TransferFrom":
		resp["result"] = n.transfer
	default:
		resp["error"] = RPCError{Code: -32601, Message: "method not found"}
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func newRpcRegistry(t *testing.T, node *fakeNode) *Rpc {
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, 5, false)
	require.NoError(t, err)

	return NewRpc(client, marketplace)
}

func TestRpcOwnerOf(t *testing.T) {
	node := &fakeNode{owner: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}
	r := newRpcRegistry(t, node)

	owner, err := r.OwnerOf(context.Background(), collection, 42)
	require.NoError(t, err)
	require.Equal(t, alice, owner)

	require.Len(t, node.calls, 1)
	require.Equal(t, "OwnerOf", node.calls[0].Method)
	require.Equal(t, []interface{}{collection, "42"}, node.calls[0].Params)
}

func TestRpcOwnerOfUnknownToken(t *testing.T) {
	r := newRpcRegistry(t, &fakeNode{})

	_, err := r.OwnerOf(context.Background(), collection, 1)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRpcIsApprovedForMarketplace(t *testing.T) {
	tests := []struct {
		name     string
		approved string
		want     bool
	}{
		{name: "marketplace", approved: marketplace, want: true},
		{name: "someone else", approved: bob, want: false},
		{name: "nobody", approved: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRpcRegistry(t, &fakeNode{approved: tt.approved})

			approved, err := r.IsApprovedForMarketplace(context.Background(), collection, 0)
			require.NoError(t, err)
			require.Equal(t, tt.want, approved)
		})
	}
}

func TestRpcTransfer(t *testing.T) {
	node := &fakeNode{transfer: true}
	r := newRpcRegistry(t, node)
	require.NoError(t, r.Transfer(context.Background(), collection, 3, alice, bob))
	require.Equal(t, []interface{}{collection, "3", alice, bob}, node.calls[0].Params)

	rejected := newRpcRegistry(t, &fakeNode{transfer: false})
	require.ErrorIs(t, rejected.Transfer(context.Background(), collection, 3, alice, bob), ErrNotApproved)
}

func TestRpcError(t *testing.T) {
	client, err := NewClient("", 5, false)
	require.Error(t, err)
	require.Nil(t, client)

	node := &fakeNode{}
	r := newRpcRegistry(t, node)
	_, err = r.client.call(context.Background(), "Unknown")

	var rpcErr RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, -32601, rpcErr.Code)
}
