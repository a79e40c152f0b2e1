package flatbank

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
)

var (
	_ Service = (*validationMiddleware)(nil)
)

type Middleware func(Service) Service

// Chain applies mws so that the first one is the outermost.
func Chain(svc Service, mws ...Middleware) Service {
	for i := len(mws) - 1; i >= 0; i-- {
		svc = mws[i](svc)
	}
	return svc
}

// validationMiddleware rejects malformed requests before they reach the
// stores. The stores still enforce their own invariants.
type validationMiddleware struct {
	next Service
}

func NewValidationMiddleware() Middleware {
	return func(svc Service) Service {
		return &validationMiddleware{
			next: svc,
		}
	}
}

func validUsername(username string, fields map[string]string) {
	if username == "" {
		fields["username"] = "missing or invalid"
	}
}

func validAmount(name string, amount decimal.Decimal, allowZero bool, fields map[string]string) {
	switch {
	case amount.IsNegative() || (!allowZero && amount.IsZero()):
		if allowZero {
			fields[name] = "must not be negative"
		} else {
			fields[name] = msgAmountPositive
		}
	case !amount.Equal(amount.Truncate(2)):
		fields[name] = "at most 2 decimal places"
	}
}

func badRequest(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return ErrBadRequest{Fields: fields}
}

func (v *validationMiddleware) Register(req CredentialsReq) error {
	fields := map[string]string{}
	validUsername(req.Username, fields)
	switch {
	case req.Password == "":
		fields["password"] = "missing or invalid"
	case len(req.Password) > MaxPasswordLen:
		fields["password"] = msgPasswordTooLong
	}
	if err := badRequest(fields); err != nil {
		return err
	}
	return v.next.Register(req)
}

func (v *validationMiddleware) Login(req CredentialsReq) (string, error) {
	fields := map[string]string{}
	validUsername(req.Username, fields)
	if err := badRequest(fields); err != nil {
		return "", err
	}
	return v.next.Login(req)
}

func (v *validationMiddleware) CreateAccount(req CreateAccountReq) (*Account, error) {
	fields := map[string]string{}
	validUsername(req.Username, fields)
	validAmount("initial_balance", req.InitialBalance, true, fields)
	if err := badRequest(fields); err != nil {
		return nil, err
	}
	return v.next.CreateAccount(req)
}

func (v *validationMiddleware) Account(req AccountReq) (*AccountView, error) {
	fields := map[string]string{}
	validUsername(req.Username, fields)
	if err := badRequest(fields); err != nil {
		return nil, err
	}
	return v.next.Account(req)
}

func (v *validationMiddleware) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	fields := map[string]string{}
	validUsername(req.Username, fields)
	validAmount("amount", req.Amount, false, fields)
	if err := badRequest(fields); err != nil {
		return nil, err
	}
	return v.next.Deposit(req)
}

func (v *validationMiddleware) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	fields := map[string]string{}
	validUsername(req.Username, fields)
	validAmount("amount", req.Amount, false, fields)
	if err := badRequest(fields); err != nil {
		return nil, err
	}
	return v.next.Withdraw(req)
}

func (v *validationMiddleware) Transfer(req TransferReq) (*decimal.Decimal, error) {
	fields := map[string]string{}
	validUsername(req.Username, fields)
	validAmount("amount", req.Amount, false, fields)
	if req.ToAcctNumber == "" {
		fields["to_account_number"] = "missing or invalid"
	}
	if err := badRequest(fields); err != nil {
		return nil, err
	}
	return v.next.Transfer(req)
}

func (v *validationMiddleware) CloseAccount(req AccountReq) error {
	fields := map[string]string{}
	validUsername(req.Username, fields)
	if err := badRequest(fields); err != nil {
		return err
	}
	return v.next.CloseAccount(req)
}

func (v *validationMiddleware) Statement(w io.Writer, req StatementReq) error {
	fields := map[string]string{}
	validUsername(req.Username, fields)
	if err := badRequest(fields); err != nil {
		return err
	}
	return v.next.Statement(w, req)
}

//
// Rate limiting middlewares
//

// limitMiddleware limits the number of in-flight requests to the service by using
// a weighted semaphore, i.e., x/sync/semaphore.Semaphore with an acquisition timeout.
// Password hashing makes Register and Login far more expensive than ledger
// calls, so they get their own, smaller pool.
type limitMiddleware struct {
	next   Service
	limits *ServiceLimits
}

var (
	_ Service = (*limitMiddleware)(nil)
)

type ServiceLimits struct {
	Auth           *semaphore.Weighted
	Query          *semaphore.Weighted
	Mutation       *semaphore.Weighted
	AcquireTimeout time.Duration
}

func NewServiceLimits(cfg *Config) *ServiceLimits {
	return &ServiceLimits{
		Auth:           semaphore.NewWeighted(cfg.Limits.Auth),
		Query:          semaphore.NewWeighted(cfg.Limits.Query),
		Mutation:       semaphore.NewWeighted(cfg.Limits.Mutation),
		AcquireTimeout: cfg.Limits.AcquireTimeout,
	}
}

func NewLimitMiddleware(limits *ServiceLimits) Middleware {
	return func(next Service) Service {
		return &limitMiddleware{
			next:   next,
			limits: limits,
		}
	}
}

// acquire returns the release func, or ErrServiceUnavailable if no token
// frees up within the acquisition timeout.
func (l *limitMiddleware) acquire(sem *semaphore.Weighted) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.limits.AcquireTimeout)
	defer cancel()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, ErrServiceUnavailable
	}
	return func() { sem.Release(1) }, nil
}

func (l *limitMiddleware) Register(req CredentialsReq) error {
	release, err := l.acquire(l.limits.Auth)
	if err != nil {
		return err
	}
	defer release()
	return l.next.Register(req)
}

func (l *limitMiddleware) Login(req CredentialsReq) (string, error) {
	release, err := l.acquire(l.limits.Auth)
	if err != nil {
		return "", err
	}
	defer release()
	return l.next.Login(req)
}

func (l *limitMiddleware) CreateAccount(req CreateAccountReq) (*Account, error) {
	release, err := l.acquire(l.limits.Mutation)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.CreateAccount(req)
}

func (l *limitMiddleware) Account(req AccountReq) (*AccountView, error) {
	release, err := l.acquire(l.limits.Query)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Account(req)
}

func (l *limitMiddleware) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	release, err := l.acquire(l.limits.Mutation)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Deposit(req)
}

func (l *limitMiddleware) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	release, err := l.acquire(l.limits.Mutation)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Withdraw(req)
}

func (l *limitMiddleware) Transfer(req TransferReq) (*decimal.Decimal, error) {
	release, err := l.acquire(l.limits.Mutation)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Transfer(req)
}

func (l *limitMiddleware) CloseAccount(req AccountReq) error {
	release, err := l.acquire(l.limits.Mutation)
	if err != nil {
		return err
	}
	defer release()
	return l.next.CloseAccount(req)
}

func (l *limitMiddleware) Statement(w io.Writer, req StatementReq) error {
	release, err := l.acquire(l.limits.Query)
	if err != nil {
		return err
	}
	defer release()
	return l.next.Statement(w, req)
}

// ServiceBreaker holds one breaker per persisted collection. A failing
// snapshot write for accounts should not lock users out of logging in.
type ServiceBreaker struct {
	Credentials *gobreaker.CircuitBreaker[any]
	Ledger      *gobreaker.CircuitBreaker[any]
}

func NewServiceBreaker(cfg *Config, log *zerolog.Logger) *ServiceBreaker {
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.Breaker.MaxRequests,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.Breaker.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state change")
			},
			// rule violations are answers, not outages
			IsSuccessful: func(err error) bool {
				return err == nil || isBusinessErr(err)
			},
		}
	}
	return &ServiceBreaker{
		Credentials: gobreaker.NewCircuitBreaker[any](settings("credentials")),
		Ledger:      gobreaker.NewCircuitBreaker[any](settings("ledger")),
	}
}

// circuitBreakMiddleware is a middleware that implements the circuit breaker pattern.
// It works in conjunction with limitMiddleware: once snapshot writes keep failing,
// requests are refused up front instead of queueing behind a broken store.
type circuitBreakMiddleware struct {
	next  Service
	brkrs *ServiceBreaker
}

var (
	_ Service = (*circuitBreakMiddleware)(nil)
)

func NewCircuitBreakMiddleware(brkrs *ServiceBreaker) Middleware {
	return func(next Service) Service {
		return &circuitBreakMiddleware{
			next:  next,
			brkrs: brkrs,
		}
	}
}

// breakerErr turns the breaker's own refusals into ErrServiceUnavailable.
func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrServiceUnavailable
	}
	return err
}

func (c *circuitBreakMiddleware) Register(req CredentialsReq) error {
	_, err := c.brkrs.Credentials.Execute(func() (any, error) {
		return nil, c.next.Register(req)
	})
	return breakerErr(err)
}

func (c *circuitBreakMiddleware) Login(req CredentialsReq) (string, error) {
	res, err := c.brkrs.Credentials.Execute(func() (any, error) {
		return c.next.Login(req)
	})
	if err != nil {
		return "", breakerErr(err)
	}
	return res.(string), nil
}

func (c *circuitBreakMiddleware) CreateAccount(req CreateAccountReq) (*Account, error) {
	res, err := c.brkrs.Ledger.Execute(func() (any, error) {
		return c.next.CreateAccount(req)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return res.(*Account), nil
}

// Account only reads memory, so it bypasses the breaker.
func (c *circuitBreakMiddleware) Account(req AccountReq) (*AccountView, error) {
	return c.next.Account(req)
}

func (c *circuitBreakMiddleware) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	return c.charge(func() (*decimal.Decimal, error) { return c.next.Deposit(req) })
}

func (c *circuitBreakMiddleware) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	return c.charge(func() (*decimal.Decimal, error) { return c.next.Withdraw(req) })
}

func (c *circuitBreakMiddleware) Transfer(req TransferReq) (*decimal.Decimal, error) {
	return c.charge(func() (*decimal.Decimal, error) { return c.next.Transfer(req) })
}

func (c *circuitBreakMiddleware) charge(fn func() (*decimal.Decimal, error)) (*decimal.Decimal, error) {
	res, err := c.brkrs.Ledger.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return res.(*decimal.Decimal), nil
}

func (c *circuitBreakMiddleware) CloseAccount(req AccountReq) error {
	_, err := c.brkrs.Ledger.Execute(func() (any, error) {
		return nil, c.next.CloseAccount(req)
	})
	return breakerErr(err)
}

func (c *circuitBreakMiddleware) Statement(w io.Writer, req StatementReq) error {
	return c.next.Statement(w, req)
}
