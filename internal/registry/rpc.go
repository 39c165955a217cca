package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ZilDuck/nft-marketplace/pkg/zil"
	"go.uber.org/zap"
)

// Rpc talks to a remote registry node exposing OwnerOf, GetApproved and
// TransferFrom JSON-RPC methods. Token ids are sent as decimal strings.
type Rpc struct {
	client      *rpcClient
	marketplace string
}

func NewRpc(client *rpcClient, marketplace string) *Rpc {
	return &Rpc{client, marketplace}
}

func (r *Rpc) OwnerOf(ctx context.Context, collection string, assetId uint64) (string, error) {
	var owner string
	if err := r.callString(ctx, &owner, "OwnerOf", collection, strconv.FormatUint(assetId, 10)); err != nil {
		return "", err
	}
	if owner == "" {
		return "", ErrTokenNotFound
	}

	return zil.NormalizeAddress(owner)
}

func (r *Rpc) IsApprovedForMarketplace(ctx context.Context, collection string, assetId uint64) (bool, error) {
	var approved string
	if err := r.callString(ctx, &approved, "GetApproved", collection, strconv.FormatUint(assetId, 10)); err != nil {
		return false, err
	}
	if approved == "" {
		return false, nil
	}

	approved, err := zil.NormalizeAddress(approved)
	if err != nil {
		return false, err
	}

	return approved == r.marketplace, nil
}

func (r *Rpc) Transfer(ctx context.Context, collection string, assetId uint64, from, to string) error {
	response, err := r.client.call(ctx, "TransferFrom", collection, strconv.FormatUint(assetId, 10), from, to)
	if err != nil {
		zap.L().With(
			zap.Error(err),
			zap.String("collection", collection),
			zap.Uint64("assetId", assetId),
		).Error("Registry: TransferFrom failed")
		return err
	}

	var ok bool
	if err := json.Unmarshal(response.Result, &ok); err != nil {
		return fmt.Errorf("TransferFrom: %w", err)
	}
	if !ok {
		return ErrNotApproved
	}

	return nil
}

func (r *Rpc) callString(ctx context.Context, result *string, method string, params ...interface{}) error {
	response, err := r.client.call(ctx, method, params...)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(response.Result, result); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	return nil
}
