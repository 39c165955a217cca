package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/event"
	"github.com/ZilDuck/nft-marketplace/internal/payout"
	"github.com/ZilDuck/nft-marketplace/internal/registry"
	"github.com/ZilDuck/nft-marketplace/internal/repository"
	uuid "github.com/nu7hatch/gouuid"
	"go.uber.org/zap"
)

type OverpaymentPolicy string

const (
	// RetainOverpayment credits the seller with the listing price and keeps
	// any excess payment out of every proceeds account.
	RetainOverpayment OverpaymentPolicy = "retain"
	// RefundOverpayment credits the excess to the buyer's proceeds.
	RefundOverpayment OverpaymentPolicy = "refund"
)

var ErrUnknownPolicy = errors.New("unknown overpayment policy")

func ParseOverpaymentPolicy(policy string) (OverpaymentPolicy, error) {
	switch OverpaymentPolicy(policy) {
	case RetainOverpayment, "":
		return RetainOverpayment, nil
	case RefundOverpayment:
		return RefundOverpayment, nil
	}
	return "", ErrUnknownPolicy
}

type Ledger interface {
	ListItem(ctx context.Context, caller, collection string, assetId uint64, price *big.Int) error
	CancelListing(ctx context.Context, caller, collection string, assetId uint64) error
	UpdateListing(ctx context.Context, caller, collection string, assetId uint64, newPrice *big.Int) error
	BuyItem(ctx context.Context, caller, collection string, assetId uint64, payment *big.Int) error
	WithdrawProceeds(ctx context.Context, caller string) (*big.Int, error)

	GetListing(ctx context.Context, collection string, assetId uint64) (entity.Listing, error)
	GetProceeds(ctx context.Context, owner string) (*big.Int, error)
	Events(ctx context.Context, fromSequence uint64, limit int) ([]entity.Event, error)
}

type ledger struct {
	mu       sync.Mutex
	active   repository.Tx
	store    repository.Store
	registry registry.AssetRegistry
	releaser payout.FundsReleaser
	events   *event.Manager
	metrics  *Metrics
	policy   OverpaymentPolicy
	now      func() time.Time
}

type ledgerKey struct{}

// NewLedger builds the marketplace ledger. events and metrics may be nil.
func NewLedger(
	store repository.Store,
	assetRegistry registry.AssetRegistry,
	releaser payout.FundsReleaser,
	events *event.Manager,
	metrics *Metrics,
	policy OverpaymentPolicy,
) Ledger {
	return &ledger{
		store:    store,
		registry: assetRegistry,
		releaser: releaser,
		events:   events,
		metrics:  metrics,
		policy:   policy,
		now:      time.Now,
	}
}

func (l *ledger) ListItem(ctx context.Context, caller, collection string, assetId uint64, price *big.Int) error {
	return l.execute(ctx, "listItem", func(ctx context.Context, tx repository.Tx) (*entity.Event, error) {
		if price == nil || price.Sign() <= 0 {
			return nil, &Error{Kind: KindPriceMustBeAboveZero, Collection: collection, AssetId: assetId, Price: price}
		}
		if err := l.requireOwner(ctx, caller, collection, assetId); err != nil {
			return nil, err
		}

		if _, err := tx.GetListing(collection, assetId); err == nil {
			return nil, &Error{Kind: KindAlreadyListed, Collection: collection, AssetId: assetId}
		} else if !errors.Is(err, repository.ErrListingNotFound) {
			return nil, err
		}

		approved, err := l.registry.IsApprovedForMarketplace(ctx, collection, assetId)
		if err != nil {
			return nil, fmt.Errorf("approval of %s/%d: %w", collection, assetId, err)
		}
		if !approved {
			return nil, &Error{Kind: KindNotApprovedForMarketplace, Collection: collection, AssetId: assetId}
		}

		listing := entity.Listing{Collection: collection, AssetId: assetId, Seller: caller, Price: new(big.Int).Set(price)}
		if err := tx.SaveListing(listing); err != nil {
			return nil, err
		}

		return l.record(tx, entity.Event{
			Type:       entity.ItemListed,
			Collection: collection,
			AssetId:    assetId,
			Seller:     caller,
			Price:      listing.Price,
		})
	})
}

func (l *ledger) CancelListing(ctx context.Context, caller, collection string, assetId uint64) error {
	return l.execute(ctx, "cancelListing", func(ctx context.Context, tx repository.Tx) (*entity.Event, error) {
		listing, err := l.requireListed(tx, collection, assetId)
		if err != nil {
			return nil, err
		}
		if err := l.requireOwner(ctx, caller, collection, assetId); err != nil {
			return nil, err
		}

		if err := tx.DeleteListing(collection, assetId); err != nil {
			return nil, err
		}

		return l.record(tx, entity.Event{
			Type:       entity.ItemCanceled,
			Collection: collection,
			AssetId:    assetId,
			Seller:     listing.Seller,
		})
	})
}

func (l *ledger) UpdateListing(ctx context.Context, caller, collection string, assetId uint64, newPrice *big.Int) error {
	return l.execute(ctx, "updateListing", func(ctx context.Context, tx repository.Tx) (*entity.Event, error) {
		listing, err := l.requireListed(tx, collection, assetId)
		if err != nil {
			return nil, err
		}
		if err := l.requireOwner(ctx, caller, collection, assetId); err != nil {
			return nil, err
		}
		if newPrice == nil || newPrice.Sign() <= 0 {
			return nil, &Error{Kind: KindPriceMustBeAboveZero, Collection: collection, AssetId: assetId, Price: newPrice}
		}

		listing.Price = new(big.Int).Set(newPrice)
		if err := tx.SaveListing(*listing); err != nil {
			return nil, err
		}

		return l.record(tx, entity.Event{
			Type:       entity.ItemListed,
			Collection: collection,
			AssetId:    assetId,
			Seller:     listing.Seller,
			Price:      listing.Price,
		})
	})
}

func (l *ledger) BuyItem(ctx context.Context, caller, collection string, assetId uint64, payment *big.Int) error {
	return l.execute(ctx, "buyItem", func(ctx context.Context, tx repository.Tx) (*entity.Event, error) {
		listing, err := l.requireListed(tx, collection, assetId)
		if err != nil {
			return nil, err
		}
		if payment == nil || payment.Cmp(listing.Price) < 0 {
			return nil, &Error{Kind: KindPriceNotMet, Collection: collection, AssetId: assetId, Price: listing.Price, Paid: payment}
		}

		// effects
		if err := tx.DeleteListing(collection, assetId); err != nil {
			return nil, err
		}
		if err := l.credit(tx, listing.Seller, listing.Price); err != nil {
			return nil, err
		}
		if excess := new(big.Int).Sub(payment, listing.Price); excess.Sign() > 0 && l.policy == RefundOverpayment {
			if err := l.credit(tx, caller, excess); err != nil {
				return nil, err
			}
		}
		e, err := l.record(tx, entity.Event{
			Type:       entity.ItemBought,
			Collection: collection,
			AssetId:    assetId,
			Seller:     listing.Seller,
			Buyer:      caller,
			Price:      listing.Price,
		})
		if err != nil {
			return nil, err
		}

		// interaction
		if err := l.registry.Transfer(ctx, collection, assetId, listing.Seller, caller); err != nil {
			return nil, &Error{Kind: KindTransferFailed, Collection: collection, AssetId: assetId, Err: err}
		}

		return e, nil
	})
}

func (l *ledger) WithdrawProceeds(ctx context.Context, caller string) (*big.Int, error) {
	var withdrawn *big.Int

	err := l.execute(ctx, "withdrawProceeds", func(ctx context.Context, tx repository.Tx) (*entity.Event, error) {
		balance, err := tx.GetProceeds(caller)
		if err != nil {
			return nil, err
		}
		if balance.Sign() <= 0 {
			return nil, &Error{Kind: KindNoProceeds, Caller: caller}
		}
		reference, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("withdrawal reference: %w", err)
		}

		// zero before release so a re-entrant withdrawal finds nothing
		if err := tx.SaveProceeds(caller, new(big.Int)); err != nil {
			return nil, err
		}
		e, err := l.record(tx, entity.Event{
			Type:   entity.ProceedsWithdrawn,
			Seller: caller,
			Price:  balance,
		})
		if err != nil {
			return nil, err
		}

		if err := l.releaser.Release(ctx, caller, balance, reference.String()); err != nil {
			return nil, &Error{Kind: KindFundsReleaseFailed, Caller: caller, Price: balance, Err: err}
		}

		withdrawn = balance
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	return withdrawn, nil
}

func (l *ledger) GetListing(ctx context.Context, collection string, assetId uint64) (entity.Listing, error) {
	var (
		listing *entity.Listing
		err     error
	)

	if tx := l.inflight(ctx); tx != nil {
		listing, err = tx.GetListing(collection, assetId)
	} else {
		listing, err = l.store.GetListing(ctx, collection, assetId)
	}

	if errors.Is(err, repository.ErrListingNotFound) {
		return entity.EmptyListing(collection, assetId), nil
	}
	if err != nil {
		return entity.Listing{}, err
	}

	return *listing, nil
}

func (l *ledger) GetProceeds(ctx context.Context, owner string) (*big.Int, error) {
	if tx := l.inflight(ctx); tx != nil {
		return tx.GetProceeds(owner)
	}
	return l.store.GetProceeds(ctx, owner)
}

func (l *ledger) Events(ctx context.Context, fromSequence uint64, limit int) ([]entity.Event, error) {
	return l.store.GetEvents(ctx, fromSequence, limit)
}

// execute runs op under the ledger lock inside one store transaction. The
// transaction is committed only when op succeeds; its event is published
// after the commit.
func (l *ledger) execute(ctx context.Context, operation string, op func(context.Context, repository.Tx) (*entity.Event, error)) error {
	if l.inflight(ctx) != nil {
		err := &Error{Kind: KindReentrantCall}
		l.metrics.failure(operation, err)
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer func() {
		l.active = nil
		_ = tx.Rollback()
	}()
	l.active = tx

	e, err := op(context.WithValue(ctx, ledgerKey{}, l), tx)
	if err != nil {
		l.metrics.failure(operation, err)
		zap.L().With(zap.String("operation", operation), zap.Error(err)).Debug("Marketplace: Operation rejected")
		return err
	}

	if err := tx.Commit(); err != nil {
		zap.L().With(zap.String("operation", operation), zap.Error(err)).Error("Marketplace: Failed to commit operation")
		return fmt.Errorf("%s: %w", operation, err)
	}

	l.metrics.success(operation)
	if e.Type == entity.ItemBought {
		price, _ := new(big.Float).SetInt(e.Price).Float64()
		l.metrics.sale(price)
	}
	l.publish(*e)

	return nil
}

// inflight returns the open transaction when ctx was handed out by a running
// ledger operation, i.e. the call is re-entering the ledger.
func (l *ledger) inflight(ctx context.Context) repository.Tx {
	if owner, ok := ctx.Value(ledgerKey{}).(*ledger); ok && owner == l {
		return l.active
	}
	return nil
}

func (l *ledger) requireOwner(ctx context.Context, caller, collection string, assetId uint64) error {
	owner, err := l.registry.OwnerOf(ctx, collection, assetId)
	if errors.Is(err, registry.ErrTokenNotFound) {
		return &Error{Kind: KindNotOwner, Collection: collection, AssetId: assetId, Caller: caller, Err: err}
	}
	if err != nil {
		return fmt.Errorf("owner of %s/%d: %w", collection, assetId, err)
	}
	if owner != caller {
		return &Error{Kind: KindNotOwner, Collection: collection, AssetId: assetId, Caller: caller}
	}

	return nil
}

func (l *ledger) requireListed(tx repository.Tx, collection string, assetId uint64) (*entity.Listing, error) {
	listing, err := tx.GetListing(collection, assetId)
	if errors.Is(err, repository.ErrListingNotFound) || (err == nil && !listing.IsListed()) {
		return nil, &Error{Kind: KindNotListed, Collection: collection, AssetId: assetId}
	}
	if err != nil {
		return nil, err
	}

	return listing, nil
}

func (l *ledger) credit(tx repository.Tx, owner string, amount *big.Int) error {
	balance, err := tx.GetProceeds(owner)
	if err != nil {
		return err
	}

	return tx.SaveProceeds(owner, balance.Add(balance, amount))
}

func (l *ledger) record(tx repository.Tx, e entity.Event) (*entity.Event, error) {
	e.Time = l.now()
	if err := tx.AppendEvent(&e); err != nil {
		return nil, err
	}

	return &e, nil
}

func (l *ledger) publish(e entity.Event) {
	fields := []zap.Field{
		zap.Uint64("sequence", e.Sequence),
		zap.String("collection", e.Collection),
		zap.Uint64("assetId", e.AssetId),
		zap.String("seller", e.Seller),
	}
	if e.Buyer != "" {
		fields = append(fields, zap.String("buyer", e.Buyer))
	}
	if e.Price != nil {
		fields = append(fields, zap.String("price", e.Price.String()))
	}
	zap.L().With(fields...).Info("Marketplace: " + string(e.Type))

	if l.events != nil {
		l.events.EmitEvent(event.Type(e.Type), e)
	}
}
