package flatbank

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const acctNumberSpace = 10_000_000_000

var (
	errNoActiveAcct = ErrNotFound{Resource: "active account", Message: "No active account found"}
)

const (
	msgAmountPositive     = "Amount must be positive"
	msgInsufficientFunds  = "Insufficient funds"
	msgRecipientNotActive = "Recipient account is not active"
)

type LedgerOption func(*Ledger)

// WithClock replaces time.Now as the source of account creation times.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithNumberGenerator replaces the random account number source. The
// ledger still retries until the generated number is unused.
func WithNumberGenerator(gen func() string) LedgerOption {
	return func(l *Ledger) {
		l.genNumber = gen
	}
}

// Ledger owns the account collection. Every operation runs
// scan -> check -> mutate -> persist under one lock, so a transfer's two
// balance updates and its snapshot write are observed together.
type Ledger struct {
	mu        sync.Mutex
	store     Store
	accts     map[string]Account
	now       func() time.Time
	genNumber func() string
	log       *zerolog.Logger
}

func NewLedger(store Store, log *zerolog.Logger, opts ...LedgerOption) (*Ledger, error) {
	l := &Ledger{
		store:     store,
		accts:     make(map[string]Account),
		now:       time.Now,
		genNumber: randomAcctNumber,
		log:       log,
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := store.Load(&l.accts); err != nil {
		return nil, err
	}
	if l.accts == nil {
		l.accts = make(map[string]Account)
	}
	return l, nil
}

func randomAcctNumber() string {
	return fmt.Sprintf("%010d", rand.Int63n(acctNumberSpace))
}

// activeAcct must be called with l.mu held.
func (l *Ledger) activeAcct(username string) (Account, bool) {
	for _, acct := range l.accts {
		if acct.Username == username && acct.IsActive {
			return acct, true
		}
	}
	return Account{}, false
}

// commit stores the updated records and persists the collection. If the
// write fails the previous records are put back so memory matches what was
// last persisted.
func (l *Ledger) commit(method string, updated ...Account) error {
	prev := make(map[string]Account, len(updated))
	for _, acct := range updated {
		if _, seen := prev[acct.AcctNumber]; seen {
			continue
		}
		if old, exists := l.accts[acct.AcctNumber]; exists {
			prev[acct.AcctNumber] = old
		} else {
			prev[acct.AcctNumber] = Account{}
		}
	}
	for _, acct := range updated {
		l.accts[acct.AcctNumber] = acct
	}

	if err := l.store.Save(l.accts); err != nil {
		for num, old := range prev {
			if old.AcctNumber == "" {
				delete(l.accts, num)
				continue
			}
			l.accts[num] = old
		}
		l.log.Err(err).Str("method", method).Msg("error saving accounts")
		return err
	}
	return nil
}

func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrBadRequest{Fields: map[string]string{"amount": msgAmountPositive}}
	}
	return nil
}

func (l *Ledger) CreateAccount(username string, initialBalance decimal.Decimal) (*Account, error) {
	if initialBalance.IsNegative() {
		return nil, ErrBadRequest{Fields: map[string]string{"initial_balance": "must not be negative"}}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.activeAcct(username); exists {
		return nil, ErrConflict{Reason: "User already has an active account"}
	}

	num := l.genNumber()
	for {
		if _, taken := l.accts[num]; !taken {
			break
		}
		num = l.genNumber()
	}

	acct := Account{
		AcctNumber: num,
		Username:   username,
		Balance:    initialBalance,
		IsActive:   true,
		CreatedAt:  l.now().UTC(),
	}
	if err := l.commit("create_account", acct); err != nil {
		return nil, err
	}
	l.log.Info().
		Str("username", username).
		Str("account_number", num).
		Msg("account created")
	return &acct, nil
}

func (l *Ledger) ActiveAccount(username string) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, exists := l.activeAcct(username)
	if !exists {
		return nil, errNoActiveAcct
	}
	return &acct, nil
}

// Accounts lists every account, active or closed, that username has ever
// owned, oldest first.
func (l *Ledger) Accounts(username string) []Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	var owned []Account
	for _, acct := range l.accts {
		if acct.Username == username {
			owned = append(owned, acct)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].AcctNumber < owned[j].AcctNumber
		}
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})
	return owned
}

func (l *Ledger) Deposit(username string, amount decimal.Decimal) (*decimal.Decimal, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, exists := l.activeAcct(username)
	if !exists {
		return nil, errNoActiveAcct
	}
	acct.Balance = acct.Balance.Add(amount)
	if err := l.commit("deposit", acct); err != nil {
		return nil, err
	}
	return &acct.Balance, nil
}

func (l *Ledger) Withdraw(username string, amount decimal.Decimal) (*decimal.Decimal, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, exists := l.activeAcct(username)
	if !exists {
		return nil, errNoActiveAcct
	}
	if acct.Balance.LessThan(amount) {
		return nil, ErrBadRequest{Fields: map[string]string{"amount": msgInsufficientFunds}}
	}
	acct.Balance = acct.Balance.Sub(amount)
	if err := l.commit("withdraw", acct); err != nil {
		return nil, err
	}
	return &acct.Balance, nil
}

// Transfer moves amount from username's active account to toAcct and
// returns the sender's new balance. Sending to one's own account is
// allowed and leaves the balance unchanged.
func (l *Ledger) Transfer(username, toAcct string, amount decimal.Decimal) (*decimal.Decimal, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sender, exists := l.activeAcct(username)
	if !exists {
		return nil, errNoActiveAcct
	}
	recipient, exists := l.accts[toAcct]
	if !exists {
		return nil, ErrNotFound{Resource: "recipient account", Message: "Recipient account not found"}
	}
	if !recipient.IsActive {
		return nil, ErrBadRequest{Fields: map[string]string{"to_account_number": msgRecipientNotActive}}
	}
	if sender.Balance.LessThan(amount) {
		return nil, ErrBadRequest{Fields: map[string]string{"amount": msgInsufficientFunds}}
	}

	if sender.AcctNumber == recipient.AcctNumber {
		// debit then credit of the same record
		sender.Balance = sender.Balance.Sub(amount).Add(amount)
		if err := l.commit("transfer", sender); err != nil {
			return nil, err
		}
		return &sender.Balance, nil
	}

	sender.Balance = sender.Balance.Sub(amount)
	recipient.Balance = recipient.Balance.Add(amount)
	if err := l.commit("transfer", sender, recipient); err != nil {
		return nil, err
	}
	l.log.Info().
		Str("from", sender.AcctNumber).
		Str("to", recipient.AcctNumber).
		Str("amount", amount.StringFixed(2)).
		Msg("transfer completed")
	return &sender.Balance, nil
}

func (l *Ledger) CloseAccount(username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, exists := l.activeAcct(username)
	if !exists {
		return errNoActiveAcct
	}
	if acct.Balance.IsPositive() {
		return ErrBadRequest{Fields: map[string]string{"balance": "Cannot close account with remaining balance. Please withdraw all funds first."}}
	}
	acct.IsActive = false
	if err := l.commit("close_account", acct); err != nil {
		return err
	}
	l.log.Info().
		Str("username", username).
		Str("account_number", acct.AcctNumber).
		Msg("account closed")
	return nil
}
