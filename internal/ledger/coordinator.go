package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"lotauction/internal/domain"
	applog "lotauction/internal/log"
)

// nonceTracker is the single piece of shared mutable state; only the
// Coordinator touches it, and only while holding its mutex.
type nonceTracker struct {
	last  uint64
	valid bool
}

// allocate returns max(pending, last+1).
func (n *nonceTracker) allocate(pending uint64) uint64 {
	if n.valid && n.last+1 > pending {
		return n.last + 1
	}
	return pending
}

func (n *nonceTracker) commit(nonce uint64) { n.last, n.valid = nonce, true }

func (n *nonceTracker) reset() { n.last, n.valid = 0, false }

// Coordinator serializes writes from one signing identity so no two of them
// use the same sequence slot. It never retries: a failed write is returned to
// the caller and the counter is re-derived from the ledger on the next call.
type Coordinator struct {
	mu      sync.Mutex
	ledger  Ledger
	signer  string
	timeout time.Duration
	nonce   nonceTracker
}

func NewCoordinator(l Ledger, signer string, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Coordinator{ledger: l, signer: signer, timeout: timeout}
}

func (c *Coordinator) Signer() string { return c.signer }

func (c *Coordinator) RegisterLot(ctx context.Context, reg LotRegistration) (Receipt, error) {
	return c.submit(ctx, "register_lot", func(ctx context.Context, nonce uint64) (Receipt, error) {
		ref, err := c.ledger.SubmitLotRegistration(ctx, c.signer, nonce, reg)
		return Receipt{TxRef: ref}, err
	})
}

func (c *Coordinator) CreateAuction(ctx context.Context, a AuctionCreation) (Receipt, error) {
	return c.submit(ctx, "create_auction", func(ctx context.Context, nonce uint64) (Receipt, error) {
		ref, seq, err := c.ledger.SubmitAuctionCreation(ctx, c.signer, nonce, a)
		return Receipt{TxRef: ref, Sequence: seq}, err
	})
}

func (c *Coordinator) SetComplianceFlag(ctx context.Context, f ComplianceFlag) (Receipt, error) {
	return c.submit(ctx, "set_compliance_flag", func(ctx context.Context, nonce uint64) (Receipt, error) {
		ref, err := c.ledger.SubmitComplianceFlag(ctx, c.signer, nonce, f)
		return Receipt{TxRef: ref}, err
	})
}

// Status looks a transaction up without taking the write lock.
func (c *Coordinator) Status(ctx context.Context, txRef string) (TxStatus, error) {
	st, err := c.ledger.TxStatus(ctx, txRef)
	if err != nil {
		return TxUnknown, domain.LedgerWrite("status", err)
	}
	return st, nil
}

func (c *Coordinator) submit(ctx context.Context, op string, send func(context.Context, uint64) (Receipt, error)) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pending, err := c.ledger.PendingNonce(ctx, c.signer)
	if err != nil {
		c.nonce.reset()
		applog.Fail("ledger.nonce.read", err, map[string]any{"op": op, "signer": c.signer})
		return Receipt{}, domain.LedgerWrite(op, err)
	}
	nonce := c.nonce.allocate(pending)

	r, err := send(ctx, nonce)
	if err != nil {
		c.nonce.reset()
		// A timed-out write may still land; the caller must check Status before retrying.
		ambiguous := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
		applog.Fail("ledger.submit", err, map[string]any{
			"op": op, "signer": c.signer, "nonce": nonce, "ambiguous": ambiguous,
		})
		return Receipt{}, domain.LedgerWrite(op, err)
	}
	c.nonce.commit(nonce)
	r.Nonce = nonce
	applog.Event("ledger.submit", map[string]any{"op": op, "nonce": nonce, "tx": r.TxRef})
	return r, nil
}
