// Package filpass models the deposit/withdraw/refund settlement contract as
// an explicit keyed store. All balance mutation funnels through the public
// entry points; revert reasons map 1:1 to the deployed contract's custom
// errors.
package filpass

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Revert reasons.
var (
	ErrOnlyUserAllowed           = errors.New("OnlyUserAllowed")
	ErrInsufficientDepositAmount = errors.New("InsufficientDepositAmount")
	ErrInvalidLockupTime         = errors.New("InvalidLockupTime")
	ErrInvalidOracleAddress      = errors.New("InvalidOracleAddress")
	ErrInvalidTicketAmount       = errors.New("InvalidTicketAmount")
	ErrWithdrawTimeExpired       = errors.New("WithdrawTimeExpired")
	ErrInsufficientFunds         = errors.New("InsufficientFunds")
	ErrInvalidWithdrawAmount     = errors.New("InvalidWithdrawAmount")
	ErrRefundTimeNotPassed       = errors.New("RefundTimeNotPassed")
	ErrNoEligibleFundsToRefund   = errors.New("NoEligibleFundsToRefund")
	ErrNoFundsToRefund           = errors.New("NoFundsToRefund")
	ErrDirectDepositsNotAllowed  = errors.New("DirectDepositsNotAllowed")
	ErrFunctionDoesNotExist      = errors.New("FunctionDoesNotExist")
)

// MaxLockupDays bounds depositAmount's lock-up argument.
const MaxLockupDays = 365

// Deposit is the per-(oracle, recipient) state. ExchangedSoFar is the
// lifetime total moved out of the pair, by withdrawals and refunds alike; it
// is the ratchet that makes stale-ticket replay a no-op.
type Deposit struct {
	Amount         *big.Int
	RefundTime     time.Time
	ExchangedSoFar *big.Int
}

// Event mirrors the contract's emitted events.
type Event struct {
	Name       string // "DepositMade" | "WithdrawalMade" | "RefundMade"
	Oracle     common.Address
	Recipient  common.Address
	Amount     *big.Int
	RefundTime time.Time
}

// Transfer is a value movement out of the contract.
type Transfer struct {
	To     common.Address
	Amount *big.Int
}

type pair struct {
	oracle    common.Address
	recipient common.Address
}

// Contract holds one funder's deposits keyed by (oracle, recipient).
type Contract struct {
	user common.Address
	now  func() time.Time

	mu       sync.Mutex
	deposits map[pair]*Deposit
	pairs    []pair // insertion order, for deterministic sweeps
	balance  *big.Int

	events    []Event
	transfers []Transfer
}

// Option configures a Contract.
type Option func(*Contract)

// WithClock overrides the contract clock. Tests use it for time travel.
func WithClock(now func() time.Time) Option {
	return func(c *Contract) { c.now = now }
}

// New deploys a contract owned by user.
func New(user common.Address, opts ...Option) *Contract {
	c := &Contract{
		user:     user,
		now:      time.Now,
		deposits: make(map[pair]*Deposit),
		balance:  new(big.Int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// User returns the funder that deployed the contract.
func (c *Contract) User() common.Address {
	return c.user
}

// DepositAmount locks value for (oracle, recipient) until at least
// lockUpDays from now. Repeated deposits accumulate, and the refund time only
// ever moves forward.
func (c *Contract) DepositAmount(caller, oracle, recipient common.Address, lockUpDays int, value *big.Int) error {
	if caller != c.user {
		return ErrOnlyUserAllowed
	}
	if value == nil || value.Sign() <= 0 {
		return ErrInsufficientDepositAmount
	}
	if lockUpDays <= 0 || lockUpDays > MaxLockupDays {
		return ErrInvalidLockupTime
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.deposit(oracle, recipient)
	d.Amount.Add(d.Amount, value)

	refundTime := c.now().Add(time.Duration(lockUpDays) * 24 * time.Hour)
	if refundTime.After(d.RefundTime) {
		d.RefundTime = refundTime
	}
	c.balance.Add(c.balance, value)

	c.emit(Event{Name: "DepositMade", Oracle: oracle, Recipient: recipient, Amount: new(big.Int).Set(value), RefundTime: d.RefundTime})
	return nil
}

// WithdrawAmount redeems a ticket. The amount paid out is the ticket's
// cumulative lane total minus what the pair has already exchanged, so
// replaying a stale ticket pays nothing.
func (c *Contract) WithdrawAmount(caller common.Address, token DecodedToken) (*big.Int, error) {
	if err := token.Validate(); err != nil {
		return nil, ErrInvalidTicketAmount
	}
	if token.LaneTotalAmount.Sign() <= 0 || token.LaneGuaranteedAmount.Sign() <= 0 {
		return nil, ErrInvalidTicketAmount
	}
	if caller != token.Sub {
		return nil, ErrInvalidOracleAddress
	}
	if token.Funder != c.user {
		return nil, ErrOnlyUserAllowed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.deposit(token.Sub, token.Aud)
	// Strictly before refund time: a withdrawal at now == refundTime is
	// already expired.
	if !c.now().Before(d.RefundTime) {
		return nil, ErrWithdrawTimeExpired
	}

	if token.LaneTotalAmount.Cmp(d.ExchangedSoFar) < 0 {
		return nil, ErrInsufficientFunds
	}
	withdraw := new(big.Int).Sub(token.LaneTotalAmount, d.ExchangedSoFar)
	if withdraw.Sign() == 0 {
		return nil, ErrInvalidWithdrawAmount
	}
	if withdraw.Cmp(d.Amount) > 0 {
		return nil, ErrInsufficientFunds
	}

	d.Amount.Sub(d.Amount, withdraw)
	d.ExchangedSoFar.Set(token.LaneTotalAmount)
	c.balance.Sub(c.balance, withdraw)

	c.transfers = append(c.transfers, Transfer{To: token.Sub, Amount: new(big.Int).Set(withdraw)})
	c.emit(Event{Name: "WithdrawalMade", Oracle: token.Sub, Recipient: token.Aud, Amount: new(big.Int).Set(withdraw)})
	return withdraw, nil
}

// RefundAmount reclaims unclaimed funds for the funder. A zero oracle and
// recipient sweeps every eligible pair; a zero recipient sweeps all
// recipients under one oracle. Bulk sweeps skip ineligible pairs silently; a
// targeted refund before its time reverts.
func (c *Contract) RefundAmount(caller, oracle, recipient common.Address) ([]Event, error) {
	if caller != c.user {
		return nil, ErrOnlyUserAllowed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	zero := common.Address{}
	targeted := oracle != zero && recipient != zero

	if targeted {
		d, ok := c.deposits[pair{oracle, recipient}]
		if !ok || d.Amount.Sign() == 0 {
			return nil, ErrNoEligibleFundsToRefund
		}
		if c.now().Before(d.RefundTime) {
			return nil, ErrRefundTimeNotPassed
		}
		return []Event{c.refund(pair{oracle, recipient}, d)}, nil
	}

	var refunded []Event
	for _, p := range c.pairs {
		if oracle != zero && p.oracle != oracle {
			continue
		}
		d := c.deposits[p]
		if d.Amount.Sign() == 0 || c.now().Before(d.RefundTime) {
			continue
		}
		refunded = append(refunded, c.refund(p, d))
	}
	if len(refunded) == 0 {
		return nil, ErrNoEligibleFundsToRefund
	}
	return refunded, nil
}

// RefundableDeposits reports which pairs a sweep with the given arguments
// would refund right now, so callers can tell "nothing eligible yet" apart
// from "nothing deposited". Wildcards follow RefundAmount's semantics.
func (c *Contract) RefundableDeposits(oracle, recipient common.Address) [][2]common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()

	zero := common.Address{}
	var eligible [][2]common.Address
	for _, p := range c.pairs {
		if oracle != zero && p.oracle != oracle {
			continue
		}
		if recipient != zero && p.recipient != recipient {
			continue
		}
		d := c.deposits[p]
		if d.Amount.Sign() > 0 && !c.now().Before(d.RefundTime) {
			eligible = append(eligible, [2]common.Address{p.oracle, p.recipient})
		}
	}
	return eligible
}

// EmergencyWithdraw sweeps the whole contract balance back to the funder.
func (c *Contract) EmergencyWithdraw(caller common.Address) (*big.Int, error) {
	if caller != c.user {
		return nil, ErrOnlyUserAllowed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.balance.Sign() == 0 {
		return nil, ErrNoFundsToRefund
	}
	amount := new(big.Int).Set(c.balance)
	for _, p := range c.pairs {
		c.deposits[p].Amount.SetInt64(0)
	}
	c.balance.SetInt64(0)
	c.transfers = append(c.transfers, Transfer{To: c.user, Amount: amount})
	return amount, nil
}

// Deposits is the public view of one pair's state.
func (c *Contract) Deposits(oracle, recipient common.Address) Deposit {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.deposits[pair{oracle, recipient}]
	if !ok {
		return Deposit{Amount: new(big.Int), ExchangedSoFar: new(big.Int)}
	}
	return Deposit{
		Amount:         new(big.Int).Set(d.Amount),
		RefundTime:     d.RefundTime,
		ExchangedSoFar: new(big.Int).Set(d.ExchangedSoFar),
	}
}

// Balance returns the total value held by the contract.
func (c *Contract) Balance() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balance)
}

// Events returns the emitted event log.
func (c *Contract) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Transfers returns the value movements out of the contract.
func (c *Contract) Transfers() []Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Transfer, len(c.transfers))
	copy(out, c.transfers)
	return out
}

// Receive rejects direct value transfers; funds enter only via DepositAmount.
func (c *Contract) Receive(_ common.Address, _ *big.Int) error {
	return ErrDirectDepositsNotAllowed
}

// Fallback rejects calls to undefined function selectors.
func (c *Contract) Fallback(_ common.Address, _ []byte, _ *big.Int) error {
	return ErrFunctionDoesNotExist
}

// deposit returns the pair's state, creating it on first use. Caller holds
// the lock.
func (c *Contract) deposit(oracle, recipient common.Address) *Deposit {
	p := pair{oracle, recipient}
	d, ok := c.deposits[p]
	if !ok {
		d = &Deposit{Amount: new(big.Int), ExchangedSoFar: new(big.Int)}
		c.deposits[p] = d
		c.pairs = append(c.pairs, p)
	}
	return d
}

// refund moves a pair's remaining amount back to the funder. Caller holds the
// lock and has checked eligibility.
func (c *Contract) refund(p pair, d *Deposit) Event {
	amount := new(big.Int).Set(d.Amount)
	d.ExchangedSoFar.Add(d.ExchangedSoFar, amount)
	d.Amount.SetInt64(0)
	c.balance.Sub(c.balance, amount)
	c.transfers = append(c.transfers, Transfer{To: c.user, Amount: amount})

	ev := Event{Name: "RefundMade", Oracle: p.oracle, Recipient: p.recipient, Amount: amount}
	c.emit(ev)
	return ev
}

func (c *Contract) emit(ev Event) {
	c.events = append(c.events, ev)
}
