package flatbank

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type CredentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateAccountReq struct {
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Username       string          `json:"-"`
}

type ChargeReq struct {
	Amount   decimal.Decimal `json:"amount"`
	Username string          `json:"-"`
}

type TransferReq struct {
	ToAcctNumber string          `json:"to_account_number"`
	Amount       decimal.Decimal `json:"amount"`
	Username     string          `json:"-"`
}

type AccountReq struct {
	Username string
}

type StatementReq struct {
	Username string
}

//go:generate mockgen -destination=mocks/service.go -package=mocks github.com/arhyth/flatbank Service

// Service is the full set of operations offered to an authenticated (or,
// for Register and Login, anonymous) caller. The caller's identity always
// travels in the request value.
type Service interface {
	Register(CredentialsReq) error
	Login(CredentialsReq) (string, error)
	CreateAccount(CreateAccountReq) (*Account, error)
	Account(AccountReq) (*AccountView, error)
	Deposit(ChargeReq) (*decimal.Decimal, error)
	Withdraw(ChargeReq) (*decimal.Decimal, error)
	Transfer(TransferReq) (*decimal.Decimal, error)
	CloseAccount(AccountReq) error
	Statement(io.Writer, StatementReq) error
}

func NewService(creds *Credentials, ledger *Ledger, log *zerolog.Logger) *serviceImpl {
	return &serviceImpl{
		creds:  creds,
		ledger: ledger,
		log:    log,
	}
}

var (
	_ Service = (*serviceImpl)(nil)
)

type serviceImpl struct {
	creds  *Credentials
	ledger *Ledger
	log    *zerolog.Logger
}

func (s *serviceImpl) Register(req CredentialsReq) error {
	return s.creds.Register(req.Username, req.Password)
}

func (s *serviceImpl) Login(req CredentialsReq) (string, error) {
	return s.creds.Authenticate(req.Username, req.Password)
}

func (s *serviceImpl) CreateAccount(req CreateAccountReq) (*Account, error) {
	return s.ledger.CreateAccount(req.Username, req.InitialBalance)
}

func (s *serviceImpl) Account(req AccountReq) (*AccountView, error) {
	acct, err := s.ledger.ActiveAccount(req.Username)
	if err != nil {
		return nil, err
	}
	view := acct.View()
	return &view, nil
}

func (s *serviceImpl) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	return s.ledger.Deposit(req.Username, req.Amount)
}

func (s *serviceImpl) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	return s.ledger.Withdraw(req.Username, req.Amount)
}

func (s *serviceImpl) Transfer(req TransferReq) (*decimal.Decimal, error) {
	return s.ledger.Transfer(req.Username, req.ToAcctNumber, req.Amount)
}

func (s *serviceImpl) CloseAccount(req AccountReq) error {
	return s.ledger.CloseAccount(req.Username)
}

func (s *serviceImpl) Statement(w io.Writer, req StatementReq) error {
	accts := s.ledger.Accounts(req.Username)
	if len(accts) == 0 {
		return ErrNotFound{Resource: "account"}
	}
	if err := writeStatement(w, req.Username, accts, s.ledger.now()); err != nil {
		s.log.Err(err).Str("method", "statement").Msg("error rendering statement")
		return ErrInternalServer
	}
	return nil
}
