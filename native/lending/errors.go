package lending

import "errors"

var (
	// ErrUnauthorized rejects a signer whose role does not permit the mutation.
	ErrUnauthorized = errors.New("lending: unauthorized")
	// ErrNotBernanke rejects an owner touching protocol-economics fields.
	ErrNotBernanke   = errors.New("lending: protocol fields require the protocol authority")
	ErrOwnerMismatch = errors.New("lending: expected owner does not match current owner")

	ErrReserveStale  = errors.New("lending: reserve is stale and must be refreshed")
	ErrReservesStale = errors.New("lending: referenced reserves must be refreshed in the same request")

	ErrOutflowLimitExceeded = errors.New("lending: outflow limit exceeded")
	ErrExceedsDepositLimit  = errors.New("lending: deposit limit exceeded")
	ErrExceedsBorrowLimit   = errors.New("lending: borrow limit exceeded")

	ErrInsufficientLiquidity       = errors.New("lending: insufficient liquidity")
	ErrInsufficientDeposit         = errors.New("lending: insufficient deposited collateral")
	ErrWithdrawExceedsAllowedValue = errors.New("lending: withdraw would leave obligation undercollateralized")

	ErrMathOverflow = errors.New("lending: math overflow")

	ErrInvalidConfig  = errors.New("lending: invalid reserve config")
	ErrInvalidAmount  = errors.New("lending: amount must be positive")
	ErrInvalidOracle  = errors.New("lending: invalid oracle price")
	ErrInvalidAddress = errors.New("lending: address must be set")

	ErrObligationReserveLimit = errors.New("lending: obligation reserve limit reached")
	ErrObligationNotOwned     = errors.New("lending: obligation not owned by signer")

	ErrAlreadyInitialized = errors.New("lending: record already initialized")
	ErrMarketNotFound     = errors.New("lending: market not found")
	ErrReserveNotFound    = errors.New("lending: reserve not found")
	ErrObligationNotFound = errors.New("lending: obligation not found")
	ErrMarketMismatch     = errors.New("lending: record belongs to a different market")

	ErrNilState = errors.New("lending: state not configured")
)
