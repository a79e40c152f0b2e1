package flatbank

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// balances go out as JSON numbers; decimal still reads them back exactly
	decimal.MarshalJSONWithoutQuotes = true
}

// Account is the persisted ledger record. Closed accounts keep their
// number forever; a user may own any number of closed accounts but at most
// one active one.
type Account struct {
	AcctNumber string          `json:"account_number"`
	Username   string          `json:"username"`
	Balance    decimal.Decimal `json:"balance"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AccountView is the public projection of an Account returned to its owner.
type AccountView struct {
	AcctNumber string          `json:"account_number"`
	Balance    decimal.Decimal `json:"balance"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (a Account) View() AccountView {
	return AccountView{
		AcctNumber: a.AcctNumber,
		Balance:    a.Balance,
		CreatedAt:  a.CreatedAt,
	}
}
