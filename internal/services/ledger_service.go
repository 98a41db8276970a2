package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/walletpay/backend/internal/models"
	"github.com/walletpay/backend/internal/repository"
)

// ErrAlreadyReversed is returned when a ledger ref already carries a
// reversal.
var ErrAlreadyReversed = repository.ErrAlreadyReversed

// PostingRequest carries everything needed to write one balanced pair.
type PostingRequest struct {
	Scenario              Scenario
	PaymentTransactionRef string
	TransactionID         string
	CustomerID            string
	OrderID               string
	Amount                decimal.Decimal
	Currency              string
	ActorID               string
}

// DoubleLedgerService is the only writer of ledger rows. Every call runs
// inside the caller's repository.Tx so the pair commits together with the
// status change that caused it.
type DoubleLedgerService struct {
	store    repository.LedgerReader
	accounts AccountResolver
	currency string
	now      func() time.Time
}

func NewDoubleLedgerService(store repository.LedgerReader, accounts AccountResolver, currency string) *DoubleLedgerService {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &DoubleLedgerService{
		store:    store,
		accounts: accounts,
		currency: currency,
		now:      time.Now,
	}
}

// Post writes the debit and credit entries for req.Scenario.
func (s *DoubleLedgerService) Post(ctx context.Context, tx repository.Tx, req PostingRequest) (models.Posting, error) {
	rule, ok := scenarioRules[req.Scenario]
	if !ok {
		return models.Posting{}, fmt.Errorf("%w: %q", ErrUnknownScenario, req.Scenario)
	}

	if !models.ValidAmount(req.Amount) {
		return models.Posting{}, fmt.Errorf("%w: %s must be positive with at most %d decimal places",
			ErrInvalidAmount, req.Amount.String(), models.CurrencyScale)
	}

	debitAccount, err := s.accounts.Resolve(rule.DebitAccount)
	if err != nil {
		return models.Posting{}, err
	}
	creditAccount, err := s.accounts.Resolve(rule.CreditAccount)
	if err != nil {
		return models.Posting{}, err
	}

	exists, err := tx.PostingExists(ctx, req.TransactionID, string(req.Scenario))
	if err != nil {
		return models.Posting{}, err
	}
	if exists {
		return models.Posting{}, fmt.Errorf("%w: %s on %s", ErrDuplicatePosting, req.Scenario, req.TransactionID)
	}

	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}

	now := s.now().UTC()
	template := models.LedgerEntry{
		LedgerRef:             newLedgerRef(rule.RefPrefix),
		Scenario:              string(req.Scenario),
		PaymentTransactionRef: req.PaymentTransactionRef,
		TransactionID:         req.TransactionID,
		CustomerID:            req.CustomerID,
		OrderID:               req.OrderID,
		Amount:                req.Amount,
		Currency:              currency,
		EntryDate:             now.Truncate(24 * time.Hour),
		CreatedBy:             req.ActorID,
		CreatedAt:             now,
	}

	debit := withAccount(template, debitAccount, models.EntryTypeDebit)
	debit.EntryID = "DEB-" + uuid.NewString()
	debit.Description = fmt.Sprintf("%s - %s", rule.DebitNarrative, req.TransactionID)

	credit := withAccount(template, creditAccount, models.EntryTypeCredit)
	credit.EntryID = "CRED-" + uuid.NewString()
	credit.Description = fmt.Sprintf("%s - %s", rule.CreditNarrative, req.TransactionID)

	if err := tx.InsertPosting(ctx, debit, credit); err != nil {
		return models.Posting{}, err
	}

	log.Printf("[LEDGER] %s %s posted %s: DR %s CR %s", template.LedgerRef, req.Scenario,
		req.Amount.StringFixed(models.CurrencyScale), debitAccount.AccountID, creditAccount.AccountID)

	return models.Posting{
		LedgerRef: template.LedgerRef,
		Scenario:  template.Scenario,
		Debit:     debit,
		Credit:    credit,
	}, nil
}

// Reverse writes the mirrored pair for ledgerRef and marks the originals as
// reversed. Amounts and accounts of the original rows are never touched.
func (s *DoubleLedgerService) Reverse(ctx context.Context, tx repository.Tx, ledgerRef, actorID, reason string) (models.Posting, error) {
	entries, err := tx.EntriesByRef(ctx, ledgerRef)
	if err != nil {
		return models.Posting{}, err
	}

	var original models.Posting
	for _, e := range entries {
		switch e.EntryType {
		case models.EntryTypeDebit:
			original.Debit = e
		case models.EntryTypeCredit:
			original.Credit = e
		}
	}
	if len(entries) != 2 || original.Debit.EntryID == "" || original.Credit.EntryID == "" {
		return models.Posting{}, fmt.Errorf("%w: ledger ref %s", ErrTransactionNotFound, ledgerRef)
	}
	if original.Debit.IsReversed || original.Credit.IsReversed {
		return models.Posting{}, fmt.Errorf("%w: %s by %s", ErrAlreadyReversed, ledgerRef, original.Debit.ReversalReference)
	}
	if isReversalScenario(original.Debit.Scenario) {
		return models.Posting{}, fmt.Errorf("%w: %s is itself a reversal", ErrInvalidStateTransition, ledgerRef)
	}

	now := s.now().UTC()
	reversalRef := newLedgerRef(reversalPrefix)
	scenario := ReversalScenario(original.Debit.Scenario)

	mirror := func(src models.LedgerEntry, entryType models.EntryType, idPrefix string) models.LedgerEntry {
		e := src
		e.EntryID = idPrefix + uuid.NewString()
		e.LedgerRef = reversalRef
		e.Scenario = scenario
		e.EntryType = entryType
		e.EntryDate = now.Truncate(24 * time.Hour)
		e.Description = fmt.Sprintf("Reversal of %s", ledgerRef)
		if reason != "" {
			e.Description += ": " + reason
		}
		e.IsReversed = false
		e.ReversalReference = ""
		e.CreatedBy = actorID
		e.CreatedAt = now
		return e
	}

	// debit the account that was credited and vice versa
	debit := mirror(original.Credit, models.EntryTypeDebit, "DEB-")
	credit := mirror(original.Debit, models.EntryTypeCredit, "CRED-")

	if err := tx.InsertPosting(ctx, debit, credit); err != nil {
		return models.Posting{}, err
	}
	if err := tx.MarkReversed(ctx, ledgerRef, reversalRef); err != nil {
		return models.Posting{}, err
	}

	log.Printf("[LEDGER] %s reversed by %s (%s)", ledgerRef, reversalRef, original.Debit.Amount.StringFixed(models.CurrencyScale))

	return models.Posting{
		LedgerRef: reversalRef,
		Scenario:  scenario,
		Debit:     debit,
		Credit:    credit,
	}, nil
}

// ActiveRef returns the ledger ref of the unreversed posting for scenario on
// transactionID.
func (s *DoubleLedgerService) ActiveRef(ctx context.Context, tx repository.Tx, transactionID string, scenario Scenario) (string, error) {
	entries, err := tx.EntriesByTransaction(ctx, transactionID)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Scenario == string(scenario) && !e.IsReversed {
			return e.LedgerRef, nil
		}
	}
	return "", fmt.Errorf("%w: no active %s posting on %s", ErrTransactionNotFound, scenario, transactionID)
}

func (s *DoubleLedgerService) LedgerEntries(ctx context.Context, transactionID string) ([]models.LedgerEntry, error) {
	return s.store.EntriesByTransaction(ctx, transactionID)
}

func (s *DoubleLedgerService) LedgerEntriesByRef(ctx context.Context, ledgerRef string) ([]models.LedgerEntry, error) {
	entries, err := s.store.EntriesByRef(ctx, ledgerRef)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: ledger ref %s", ErrTransactionNotFound, ledgerRef)
	}
	return entries, nil
}

// TrialBalance sums both sides of every entry recorded for transactionID.
func (s *DoubleLedgerService) TrialBalance(ctx context.Context, transactionID string) (models.TrialBalance, error) {
	entries, err := s.store.EntriesByTransaction(ctx, transactionID)
	if err != nil {
		return models.TrialBalance{}, err
	}
	tb := models.NewTrialBalance(transactionID, entries)
	if !tb.Balanced {
		log.Printf("[LEDGER] trial balance mismatch for %s: DR %s CR %s", transactionID,
			tb.TotalDebits.StringFixed(models.CurrencyScale), tb.TotalCredits.StringFixed(models.CurrencyScale))
	}
	return tb, nil
}

func withAccount(e models.LedgerEntry, a models.Account, entryType models.EntryType) models.LedgerEntry {
	e.AccountID = a.AccountID
	e.AccountName = a.AccountName
	e.AccountType = a.AccountType
	e.NormalBalance = a.NormalBalance
	e.LedgerType = a.LedgerType
	e.EntryType = entryType
	return e
}

// newLedgerRef returns PREFIX-xxxxxxxx with eight hex characters.
func newLedgerRef(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
