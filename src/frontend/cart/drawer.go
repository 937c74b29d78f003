// Package cart is the per-shopper cart drawer controller. It serializes cart
// mutations and keeps the freshest snapshot reported by the store.
package cart

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nordic-editorial/storefront/src/frontend/model"
)

const (
	MsgAdded   = "Item added to cart"
	MsgUpdated = "Cart updated"
	MsgRemoved = "Item removed from cart"
	MsgCleared = "Cart cleared"
	MsgFailed  = "Error updating cart"
)

var (
	// ErrBusy is returned when a mutation is already in flight. No request is
	// sent.
	ErrBusy            = errors.New("cart: update already in progress")
	ErrInvalidQuantity = errors.New("cart: invalid quantity")
	ErrUnknownLine     = errors.New("cart: no such line")
)

// Client is the remote cart.
type Client interface {
	AddItem(ctx context.Context, variantID int64, quantity int) (*model.LineItem, error)
	SetQuantity(ctx context.Context, key string, quantity int) (*model.Snapshot, error)
	FetchSnapshot(ctx context.Context) (*model.Snapshot, error)
	Clear(ctx context.Context) (*model.Snapshot, error)
}

// Outcome is the result of a successful mutation.
type Outcome struct {
	Snapshot *model.Snapshot
	Added    *model.LineItem
	Message  string
	// Stale is set when the mutation succeeded but the follow-up fetch did
	// not; Snapshot is then the last known one.
	Stale bool
}

type Drawer struct {
	client  Client
	log     logrus.FieldLogger
	metrics *Metrics

	busy atomic.Bool

	mu   sync.RWMutex
	snap *model.Snapshot
	gen  uint64
}

// NewDrawer wires a drawer to a remote cart. metrics may be nil.
func NewDrawer(client Client, log logrus.FieldLogger, metrics *Metrics) *Drawer {
	return &Drawer{client: client, log: log, metrics: metrics}
}

// Snapshot is the last snapshot stored, or nil before the first fetch.
func (d *Drawer) Snapshot() *model.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snap
}

// Busy reports whether a mutation is in flight.
func (d *Drawer) Busy() bool { return d.busy.Load() }

func (d *Drawer) acquire() error {
	if !d.busy.CompareAndSwap(false, true) {
		d.metrics.incBusy()
		return ErrBusy
	}
	return nil
}

func (d *Drawer) release() { d.busy.Store(false) }

func (d *Drawer) store(snap *model.Snapshot) {
	d.mu.Lock()
	d.snap = snap
	d.gen++
	d.mu.Unlock()
}

func (d *Drawer) fail(op string, err error) {
	d.metrics.incFailed()
	if errors.Is(err, context.Canceled) {
		d.log.WithField("cart.op", op).Debug("cart mutation cancelled")
		return
	}
	d.log.WithField("cart.op", op).WithError(err).Warn("cart mutation failed")
}

// Add puts quantity units of a variant in the cart and then reloads the
// cart, since the store only answers with the affected line.
func (d *Drawer) Add(ctx context.Context, variantID int64, quantity int) (*Outcome, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	line, err := d.client.AddItem(ctx, variantID, quantity)
	if err != nil {
		d.fail("add", err)
		return nil, err
	}
	d.metrics.incMutations()

	out := &Outcome{Added: line, Message: MsgAdded}
	snap, err := d.client.FetchSnapshot(ctx)
	if err != nil {
		d.metrics.incStale()
		d.log.WithError(err).Warn("cart refresh after add failed")
		out.Stale = true
		out.Snapshot = d.Snapshot()
		return out, nil
	}
	d.store(snap)
	out.Snapshot = snap
	return out, nil
}

// SetQuantity sets a line to an absolute quantity. Zero removes the line.
func (d *Drawer) SetQuantity(ctx context.Context, key string, quantity int) (*Outcome, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	snap, err := d.client.SetQuantity(ctx, key, quantity)
	if err != nil {
		d.fail("change", err)
		return nil, err
	}
	d.metrics.incMutations()
	d.store(snap)

	msg := MsgUpdated
	if quantity == 0 {
		msg = MsgRemoved
	}
	return &Outcome{Snapshot: snap, Message: msg}, nil
}

// Step moves a line's quantity by delta, never below zero.
func (d *Drawer) Step(ctx context.Context, key string, delta int) (*Outcome, error) {
	current, ok := d.quantityOf(key)
	if !ok {
		if _, err := d.Refresh(ctx); err != nil {
			return nil, err
		}
		if current, ok = d.quantityOf(key); !ok {
			return nil, ErrUnknownLine
		}
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	return d.SetQuantity(ctx, key, next)
}

func (d *Drawer) Remove(ctx context.Context, key string) (*Outcome, error) {
	return d.SetQuantity(ctx, key, 0)
}

func (d *Drawer) Clear(ctx context.Context) (*Outcome, error) {
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	snap, err := d.client.Clear(ctx)
	if err != nil {
		d.fail("clear", err)
		return nil, err
	}
	d.metrics.incMutations()
	d.store(snap)
	return &Outcome{Snapshot: snap, Message: MsgCleared}, nil
}

// Refresh reloads the cart. If a mutation stores a snapshot while the fetch
// is in flight, the mutation's snapshot is kept and returned.
func (d *Drawer) Refresh(ctx context.Context) (*model.Snapshot, error) {
	d.mu.RLock()
	gen := d.gen
	d.mu.RUnlock()

	snap, err := d.client.FetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		return d.snap, nil
	}
	d.snap = snap
	return snap, nil
}

func (d *Drawer) quantityOf(key string) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.snap == nil {
		return 0, false
	}
	line, ok := d.snap.Line(key)
	if !ok {
		return 0, false
	}
	return line.Quantity, true
}
