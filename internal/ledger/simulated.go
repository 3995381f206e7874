package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"
)

var ErrNonceTooLow = errors.New("nonce too low")

// Submission is one write the simulated ledger accepted (or swallowed).
type Submission struct {
	Op     string
	Signer string
	Nonce  uint64
	TxRef  string
}

// Simulated is an in-process ledger with the same sequencing rules as the real
// one: a write whose nonce is below the signer's next slot is rejected, anything
// at or above it is accepted and moves the slot forward.
type Simulated struct {
	mu       sync.Mutex
	next     map[string]uint64
	status   map[string]TxStatus
	subs     []Submission
	sequence int64
	failNext []error
	hangNext int
	lag      uint64
}

func NewSimulated() *Simulated {
	return &Simulated{next: map[string]uint64{}, status: map[string]TxStatus{}}
}

// FailNext makes the next submission fail with err without using its slot.
func (s *Simulated) FailNext(err error) {
	s.mu.Lock()
	s.failNext = append(s.failNext, err)
	s.mu.Unlock()
}

// HangNext makes the next submission take its slot and stay pending, then block
// until the caller's context ends: the ambiguous "sent but unconfirmed" case.
func (s *Simulated) HangNext() {
	s.mu.Lock()
	s.hangNext++
	s.mu.Unlock()
}

// LagPendingBy makes PendingNonce under-report by n, like a node that has not
// seen the signer's most recent writes yet.
func (s *Simulated) LagPendingBy(n uint64) {
	s.mu.Lock()
	s.lag = n
	s.mu.Unlock()
}

func (s *Simulated) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.subs...)
}

func (s *Simulated) PendingNonce(ctx context.Context, signer string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next[signer]
	if s.lag > 0 {
		if n < s.lag {
			return 0, nil
		}
		return n - s.lag, nil
	}
	return n, nil
}

func (s *Simulated) SubmitLotRegistration(ctx context.Context, signer string, nonce uint64, reg LotRegistration) (string, error) {
	ref, _, err := s.accept(ctx, "register_lot", signer, nonce, reg)
	return ref, err
}

func (s *Simulated) SubmitAuctionCreation(ctx context.Context, signer string, nonce uint64, a AuctionCreation) (string, int64, error) {
	return s.accept(ctx, "create_auction", signer, nonce, a)
}

func (s *Simulated) SubmitComplianceFlag(ctx context.Context, signer string, nonce uint64, f ComplianceFlag) (string, error) {
	ref, _, err := s.accept(ctx, "set_compliance_flag", signer, nonce, f)
	return ref, err
}

func (s *Simulated) TxStatus(ctx context.Context, txRef string) (TxStatus, error) {
	if err := ctx.Err(); err != nil {
		return TxUnknown, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[txRef]; ok {
		return st, nil
	}
	return TxUnknown, nil
}

func (s *Simulated) accept(ctx context.Context, op, signer string, nonce uint64, payload any) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	s.mu.Lock()
	if len(s.failNext) > 0 {
		err := s.failNext[0]
		s.failNext = s.failNext[1:]
		s.mu.Unlock()
		return "", 0, err
	}
	if nonce < s.next[signer] {
		s.mu.Unlock()
		return "", 0, fmt.Errorf("%w: got %d, next is %d", ErrNonceTooLow, nonce, s.next[signer])
	}

	ref := txHash(op, signer, nonce, payload)
	s.next[signer] = nonce + 1
	s.subs = append(s.subs, Submission{Op: op, Signer: signer, Nonce: nonce, TxRef: ref})

	if s.hangNext > 0 {
		s.hangNext--
		s.status[ref] = TxPending
		s.mu.Unlock()
		<-ctx.Done()
		return "", 0, ctx.Err()
	}

	s.status[ref] = TxConfirmed
	var seq int64
	if op == "create_auction" {
		s.sequence++
		seq = s.sequence
	}
	s.mu.Unlock()
	return ref, seq, nil
}

// txHash is keccak256 over the signer, slot, operation and payload.
func txHash(op, signer string, nonce uint64, payload any) string {
	b, _ := json.Marshal(payload)
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "%s|%d|%s|", signer, nonce, op)
	h.Write(b)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
