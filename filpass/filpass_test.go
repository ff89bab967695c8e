package filpass_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filpass_credits/filpass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	funder     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	oracle     = common.HexToAddress("0x2000000000000000000000000000000000000002")
	recipient  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	recipient2 = common.HexToAddress("0x4000000000000000000000000000000000000004")
	stranger   = common.HexToAddress("0x5000000000000000000000000000000000000005")
)

// clock is a settable contract clock.
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newContract(t *testing.T) (*filpass.Contract, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return filpass.New(funder, filpass.WithClock(c.Now)), c
}

func ticket(to, total, guaranteed int64, aud common.Address) filpass.DecodedToken {
	return filpass.DecodedToken{
		Iss:                  "https://issuer.example/.well-known/jwks.json",
		Jti:                  "ticket-1",
		Exp:                  to,
		Iat:                  to - 3600,
		TicketType:           filpass.TicketType,
		TicketVersion:        filpass.TicketVersion,
		Funder:               funder,
		Sub:                  oracle,
		Aud:                  aud,
		TicketLane:           0,
		LaneTotalAmount:      big.NewInt(total),
		LaneGuaranteedAmount: big.NewInt(guaranteed),
		LaneGuaranteedUntil:  to * 1000,
	}
}

func TestDepositAmount(t *testing.T) {
	c, clk := newContract(t)

	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 10, big.NewInt(100)))

	d := c.Deposits(oracle, recipient)
	assert.Equal(t, big.NewInt(100), d.Amount)
	assert.Equal(t, clk.now.Add(10*24*time.Hour), d.RefundTime)
	assert.Equal(t, big.NewInt(100), c.Balance())

	// Repeat deposits accumulate.
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 10, big.NewInt(50)))
	d = c.Deposits(oracle, recipient)
	assert.Equal(t, big.NewInt(150), d.Amount)
	assert.Equal(t, big.NewInt(150), c.Balance())

	events := c.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "DepositMade", events[0].Name)
	assert.Equal(t, big.NewInt(100), events[0].Amount)
	assert.Equal(t, big.NewInt(50), events[1].Amount)
}

func TestDepositAmountRefundTimeOnlyMovesForward(t *testing.T) {
	c, clk := newContract(t)

	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 30, big.NewInt(100)))
	longRefund := c.Deposits(oracle, recipient).RefundTime

	// A later deposit with a shorter lock-up keeps the longer refund time.
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 1, big.NewInt(100)))
	assert.Equal(t, longRefund, c.Deposits(oracle, recipient).RefundTime)

	// But a deposit extending past it moves the time forward.
	clk.Advance(29 * 24 * time.Hour)
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 30, big.NewInt(100)))
	assert.Equal(t, clk.now.Add(30*24*time.Hour), c.Deposits(oracle, recipient).RefundTime)
}

func TestDepositAmountReverts(t *testing.T) {
	c, _ := newContract(t)

	assert.ErrorIs(t, c.DepositAmount(stranger, oracle, recipient, 10, big.NewInt(100)),
		filpass.ErrOnlyUserAllowed)
	assert.ErrorIs(t, c.DepositAmount(funder, oracle, recipient, 10, big.NewInt(0)),
		filpass.ErrInsufficientDepositAmount)
	assert.ErrorIs(t, c.DepositAmount(funder, oracle, recipient, 0, big.NewInt(100)),
		filpass.ErrInvalidLockupTime)
	assert.ErrorIs(t, c.DepositAmount(funder, oracle, recipient, 366, big.NewInt(100)),
		filpass.ErrInvalidLockupTime)
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 365, big.NewInt(100)))
}

func TestWithdrawAmount(t *testing.T) {
	c, _ := newContract(t)
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 10, big.NewInt(1000)))

	paid, err := c.WithdrawAmount(oracle, ticket(9999999999, 300, 300, recipient))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300), paid)

	d := c.Deposits(oracle, recipient)
	assert.Equal(t, big.NewInt(700), d.Amount)
	assert.Equal(t, big.NewInt(300), d.ExchangedSoFar)
	assert.Equal(t, big.NewInt(700), c.Balance())

	transfers := c.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, oracle, transfers[0].To)
	assert.Equal(t, big.NewInt(300), transfers[0].Amount)
}

func TestWithdrawAmountPaysLaneTotalMinusExchanged(t *testing.T) {
	c, _ := newContract(t)
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 10, big.NewInt(1000)))

	_, err := c.WithdrawAmount(oracle, ticket(9999999999, 300, 300, recipient))
	require.NoError(t, err)

	// A bigger cumulative ticket pays only the delta.
	paid, err := c.WithdrawAmount(oracle, ticket(9999999999, 500, 200, recipient))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200), paid)
	assert.Equal(t, big.NewInt(500), c.Deposits(oracle, recipient).ExchangedSoFar)
}

func TestWithdrawAmountReplayPaysNothing(t *testing.T) {
	c, _ := newContract(t)
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 10, big.NewInt(1000)))

	tk := ticket(9999999999, 300, 300, recipient)
	_, err := c.WithdrawAmount(oracle, tk)
	require.NoError(t, err)

	// Replaying the same ticket computes a zero withdrawal.
	_, err = c.WithdrawAmount(oracle, tk)
	assert.ErrorIs(t, err, filpass.ErrInvalidWithdrawAmount)
	assert.Equal(t, big.NewInt(700), c.Deposits(oracle, recipient).Amount)

	// A stale, smaller ticket would decrease exchangedSoFar.
	_, err = c.WithdrawAmount(oracle, ticket(9999999999, 100, 100, recipient))
	assert.ErrorIs(t, err, filpass.ErrInsufficientFunds)
}

func TestWithdrawAmountReverts(t *testing.T) {
	c, clk := newContract(t)
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 10, big.NewInt(100)))

	// Not the ticket's oracle.
	_, err := c.WithdrawAmount(stranger, ticket(9999999999, 50, 50, recipient))
	assert.ErrorIs(t, err, filpass.ErrInvalidOracleAddress)

	// Ticket total above the deposited amount.
	_, err = c.WithdrawAmount(oracle, ticket(9999999999, 500, 500, recipient))
	assert.ErrorIs(t, err, filpass.ErrInsufficientFunds)

	// Zero-amount ticket.
	_, err = c.WithdrawAmount(oracle, ticket(9999999999, 0, 0, recipient))
	assert.ErrorIs(t, err, filpass.ErrInvalidTicketAmount)

	// Withdrawal at exactly the refund time is already expired.
	clk.Advance(10 * 24 * time.Hour)
	_, err = c.WithdrawAmount(oracle, ticket(9999999999, 50, 50, recipient))
	assert.ErrorIs(t, err, filpass.ErrWithdrawTimeExpired)
}

func TestRefundAmountTargeted(t *testing.T) {
	c, clk := newContract(t)
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 10, big.NewInt(1000)))

	// Before the refund time a targeted refund reverts.
	_, err := c.RefundAmount(funder, oracle, recipient)
	assert.ErrorIs(t, err, filpass.ErrRefundTimeNotPassed)

	clk.Advance(10*24*time.Hour + time.Second)
	events, err := c.RefundAmount(funder, oracle, recipient)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "RefundMade", events[0].Name)
	assert.Equal(t, big.NewInt(1000), events[0].Amount)

	d := c.Deposits(oracle, recipient)
	assert.Equal(t, int64(0), d.Amount.Int64())
	assert.Equal(t, big.NewInt(1000), d.ExchangedSoFar)
	assert.Equal(t, int64(0), c.Balance().Int64())

	// Nothing left to refund.
	_, err = c.RefundAmount(funder, oracle, recipient)
	assert.ErrorIs(t, err, filpass.ErrNoEligibleFundsToRefund)
}

func TestRefundAmountWildcardSweep(t *testing.T) {
	c, clk := newContract(t)
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 1, big.NewInt(100)))
	require.NoError(t, c.DepositAmount(funder, oracle, recipient2, 30, big.NewInt(200)))

	clk.Advance(2 * 24 * time.Hour)

	// Only the matured pair is swept; the locked one is skipped silently.
	events, err := c.RefundAmount(funder, common.Address{}, common.Address{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, recipient, events[0].Recipient)
	assert.Equal(t, big.NewInt(100), events[0].Amount)
	assert.Equal(t, big.NewInt(200), c.Balance())

	// Nothing eligible anymore.
	_, err = c.RefundAmount(funder, common.Address{}, common.Address{})
	assert.ErrorIs(t, err, filpass.ErrNoEligibleFundsToRefund)

	clk.Advance(30 * 24 * time.Hour)
	events, err = c.RefundAmount(funder, oracle, common.Address{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, recipient2, events[0].Recipient)
	assert.Equal(t, int64(0), c.Balance().Int64())
}

func TestRefundAmountOnlyUser(t *testing.T) {
	c, _ := newContract(t)
	_, err := c.RefundAmount(stranger, oracle, recipient)
	assert.ErrorIs(t, err, filpass.ErrOnlyUserAllowed)
}

func TestRefundableDeposits(t *testing.T) {
	c, clk := newContract(t)
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 1, big.NewInt(100)))
	require.NoError(t, c.DepositAmount(funder, oracle, recipient2, 30, big.NewInt(200)))

	assert.Empty(t, c.RefundableDeposits(common.Address{}, common.Address{}))

	clk.Advance(2 * 24 * time.Hour)
	eligible := c.RefundableDeposits(common.Address{}, common.Address{})
	require.Len(t, eligible, 1)
	assert.Equal(t, recipient, eligible[0][1])

	assert.Empty(t, c.RefundableDeposits(oracle, recipient2))
}

func TestEmergencyWithdraw(t *testing.T) {
	c, _ := newContract(t)
	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 10, big.NewInt(100)))
	require.NoError(t, c.DepositAmount(funder, oracle, recipient2, 10, big.NewInt(200)))

	_, err := c.EmergencyWithdraw(stranger)
	assert.ErrorIs(t, err, filpass.ErrOnlyUserAllowed)

	amount, err := c.EmergencyWithdraw(funder)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300), amount)
	assert.Equal(t, int64(0), c.Balance().Int64())
	assert.Equal(t, int64(0), c.Deposits(oracle, recipient).Amount.Int64())

	_, err = c.EmergencyWithdraw(funder)
	assert.ErrorIs(t, err, filpass.ErrNoFundsToRefund)
}

func TestDirectTransfersRejected(t *testing.T) {
	c, _ := newContract(t)
	assert.ErrorIs(t, c.Receive(funder, big.NewInt(1)), filpass.ErrDirectDepositsNotAllowed)
	assert.ErrorIs(t, c.Fallback(funder, []byte{0x01}, big.NewInt(0)), filpass.ErrFunctionDoesNotExist)
}

func TestFullLifecycle(t *testing.T) {
	c, clk := newContract(t)

	require.NoError(t, c.DepositAmount(funder, oracle, recipient, 30, big.NewInt(1000)))

	paid, err := c.WithdrawAmount(oracle, ticket(9999999999, 400, 400, recipient))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(400), paid)

	clk.Advance(31 * 24 * time.Hour)
	events, err := c.RefundAmount(funder, oracle, recipient)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(600), events[0].Amount)

	// Everything that entered has now left: 400 to the oracle, 600 back.
	assert.Equal(t, int64(0), c.Balance().Int64())
	d := c.Deposits(oracle, recipient)
	assert.Equal(t, big.NewInt(1000), d.ExchangedSoFar)

	// A post-refund ticket for the old lane total pays nothing.
	_, err = c.WithdrawAmount(oracle, ticket(9999999999, 1000, 600, recipient))
	assert.ErrorIs(t, err, filpass.ErrWithdrawTimeExpired)
}
