package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/walletpay/backend/internal/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store used by tests and local runs without
// Postgres. Units of work are serialized; each one operates on a private copy
// of the state that replaces the committed state only when fn succeeds.
type MemoryStore struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	state  *memState
	faults map[string]error
}

type memState struct {
	accounts []models.Account
	ledger   []models.LedgerEntry
	payments map[string]models.PaymentTransaction
	payouts  map[string]models.PayoutTransaction
	refunds  map[string]models.RefundRequest
}

func NewMemoryStore(accounts []models.Account) *MemoryStore {
	return &MemoryStore{
		state: &memState{
			accounts: append([]models.Account(nil), accounts...),
			payments: make(map[string]models.PaymentTransaction),
			payouts:  make(map[string]models.PayoutTransaction),
			refunds:  make(map[string]models.RefundRequest),
		},
		faults: make(map[string]error),
	}
}

// InjectFault makes the next call to the named Tx operation (for example
// "UpdatePayment" or "InsertPosting") fail with err.
func (s *MemoryStore) InjectFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *MemoryStore) takeFault(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.faults[op]
	delete(s.faults, op)
	return err
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(&memTx{store: s, state: working}); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) read() *memState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *MemoryStore) Accounts(ctx context.Context) ([]models.Account, error) {
	return append([]models.Account(nil), s.read().accounts...), nil
}

func (s *MemoryStore) EntriesByTransaction(ctx context.Context, transactionID string) ([]models.LedgerEntry, error) {
	return s.read().entriesWhere(func(e models.LedgerEntry) bool { return e.TransactionID == transactionID }), nil
}

func (s *MemoryStore) EntriesByRef(ctx context.Context, ledgerRef string) ([]models.LedgerEntry, error) {
	return s.read().entriesWhere(func(e models.LedgerEntry) bool { return e.LedgerRef == ledgerRef }), nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	p, ok := s.read().payments[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) FindPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (string, error) {
	return s.findPayment(func(p models.PaymentTransaction) bool { return p.GatewayOrderID == gatewayOrderID })
}

func (s *MemoryStore) FindPaymentByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (string, error) {
	return s.findPayment(func(p models.PaymentTransaction) bool { return p.GatewayPaymentID == gatewayPaymentID })
}

func (s *MemoryStore) FindPaymentByGatewayRefundID(ctx context.Context, gatewayRefundID string) (string, error) {
	return s.findPayment(func(p models.PaymentTransaction) bool { return p.GatewayRefundID == gatewayRefundID })
}

func (s *MemoryStore) findPayment(match func(models.PaymentTransaction) bool) (string, error) {
	for id, p := range s.read().payments {
		if match(p) {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStore) PendingRefunds(ctx context.Context, limit, offset int) ([]models.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var pending []models.PaymentTransaction
	for _, p := range s.read().payments {
		if p.RefundApprovalStatus == models.ApprovalPending {
			pending = append(pending, p)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		a, b := pending[i].RefundRequestedAt, pending[j].RefundRequestedAt
		if a == nil || b == nil {
			return pending[i].TransactionID < pending[j].TransactionID
		}
		return a.After(*b)
	})

	if offset >= len(pending) {
		return nil, nil
	}
	end := offset + limit
	if end > len(pending) {
		end = len(pending)
	}
	return pending[offset:end], nil
}

func (s *MemoryStore) GetPayout(ctx context.Context, payoutID string) (*models.PayoutTransaction, error) {
	p, ok := s.read().payouts[payoutID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) FindPayoutByGatewayPayoutID(ctx context.Context, gatewayPayoutID string) (string, error) {
	for id, p := range s.read().payouts {
		if p.GatewayPayoutID == gatewayPayoutID {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStore) GetRefundRequest(ctx context.Context, refundRequestID string) (*models.RefundRequest, error) {
	r, ok := s.read().refunds[refundRequestID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (st *memState) clone() *memState {
	c := &memState{
		accounts: st.accounts,
		ledger:   append([]models.LedgerEntry(nil), st.ledger...),
		payments: make(map[string]models.PaymentTransaction, len(st.payments)),
		payouts:  make(map[string]models.PayoutTransaction, len(st.payouts)),
		refunds:  make(map[string]models.RefundRequest, len(st.refunds)),
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.payouts {
		c.payouts[k] = v
	}
	for k, v := range st.refunds {
		c.refunds[k] = v
	}
	return c
}

func (st *memState) entriesWhere(match func(models.LedgerEntry) bool) []models.LedgerEntry {
	var out []models.LedgerEntry
	for _, e := range st.ledger {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

type memTx struct {
	store *MemoryStore
	state *memState
}

func (t *memTx) EntriesByTransaction(ctx context.Context, transactionID string) ([]models.LedgerEntry, error) {
	return t.state.entriesWhere(func(e models.LedgerEntry) bool { return e.TransactionID == transactionID }), nil
}

func (t *memTx) EntriesByRef(ctx context.Context, ledgerRef string) ([]models.LedgerEntry, error) {
	return t.state.entriesWhere(func(e models.LedgerEntry) bool { return e.LedgerRef == ledgerRef }), nil
}

func (t *memTx) PostingExists(ctx context.Context, transactionID, scenario string) (bool, error) {
	for _, e := range t.state.ledger {
		if e.TransactionID == transactionID && e.Scenario == scenario {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertPosting(ctx context.Context, debit, credit models.LedgerEntry) error {
	if err := t.store.takeFault("InsertPosting"); err != nil {
		return err
	}
	for _, e := range t.state.ledger {
		for _, n := range []models.LedgerEntry{debit, credit} {
			if e.EntryID == n.EntryID ||
				(e.TransactionID == n.TransactionID && e.Scenario == n.Scenario && e.EntryType == n.EntryType) {
				return ErrDuplicatePosting
			}
		}
	}
	t.state.ledger = append(t.state.ledger, debit, credit)
	return nil
}

func (t *memTx) MarkReversed(ctx context.Context, ledgerRef, reversalRef string) error {
	if err := t.store.takeFault("MarkReversed"); err != nil {
		return err
	}
	marked := 0
	for i := range t.state.ledger {
		e := &t.state.ledger[i]
		if e.LedgerRef == ledgerRef && !e.IsReversed {
			e.IsReversed = true
			e.ReversalReference = reversalRef
			marked++
		}
	}
	if marked == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

func (t *memTx) InsertPayment(ctx context.Context, p *models.PaymentTransaction) error {
	if _, exists := t.state.payments[p.TransactionID]; exists {
		return ErrDuplicateReference
	}
	for _, existing := range t.state.payments {
		if existing.GatewayOrderID != "" && existing.GatewayOrderID == p.GatewayOrderID {
			return ErrDuplicateReference
		}
		if existing.GatewayPaymentID != "" && existing.GatewayPaymentID == p.GatewayPaymentID {
			return ErrDuplicateReference
		}
	}
	t.state.payments[p.TransactionID] = *p
	return nil
}

func (t *memTx) LockPayment(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	p, ok := t.state.payments[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) UpdatePayment(ctx context.Context, p *models.PaymentTransaction) error {
	if err := t.store.takeFault("UpdatePayment"); err != nil {
		return err
	}
	current, ok := t.state.payments[p.TransactionID]
	if !ok || current.Version != p.Version {
		return ErrConcurrentModification
	}
	for id, existing := range t.state.payments {
		if id != p.TransactionID && p.GatewayPaymentID != "" && existing.GatewayPaymentID == p.GatewayPaymentID {
			return ErrDuplicateReference
		}
	}
	p.Version++
	t.state.payments[p.TransactionID] = *p
	return nil
}

func (t *memTx) InsertPayout(ctx context.Context, p *models.PayoutTransaction) error {
	if _, exists := t.state.payouts[p.PayoutID]; exists {
		return ErrDuplicateReference
	}
	for _, existing := range t.state.payouts {
		if p.ReferenceID != "" && existing.ReferenceID == p.ReferenceID {
			return ErrDuplicateReference
		}
		if p.GatewayPayoutID != "" && existing.GatewayPayoutID == p.GatewayPayoutID {
			return ErrDuplicateReference
		}
	}
	t.state.payouts[p.PayoutID] = *p
	return nil
}

func (t *memTx) LockPayout(ctx context.Context, payoutID string) (*models.PayoutTransaction, error) {
	p, ok := t.state.payouts[payoutID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) UpdatePayout(ctx context.Context, p *models.PayoutTransaction) error {
	if err := t.store.takeFault("UpdatePayout"); err != nil {
		return err
	}
	current, ok := t.state.payouts[p.PayoutID]
	if !ok || current.Version != p.Version {
		return ErrConcurrentModification
	}
	p.Version++
	t.state.payouts[p.PayoutID] = *p
	return nil
}

func (t *memTx) InsertRefundRequest(ctx context.Context, r *models.RefundRequest) error {
	if _, exists := t.state.refunds[r.RefundRequestID]; exists {
		return ErrDuplicateReference
	}
	t.state.refunds[r.RefundRequestID] = *r
	return nil
}

func (t *memTx) LockRefundRequest(ctx context.Context, refundRequestID string) (*models.RefundRequest, error) {
	r, ok := t.state.refunds[refundRequestID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memTx) UpdateRefundRequest(ctx context.Context, r *models.RefundRequest) error {
	if err := t.store.takeFault("UpdateRefundRequest"); err != nil {
		return err
	}
	current, ok := t.state.refunds[r.RefundRequestID]
	if !ok || current.Version != r.Version {
		return ErrConcurrentModification
	}
	r.Version++
	t.state.refunds[r.RefundRequestID] = *r
	return nil
}
