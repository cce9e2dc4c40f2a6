package runclub

import "errors"

var (
	ErrInvalidRate           = errors.New("runclub: usdc per km must be positive")
	ErrInvalidDuration       = errors.New("runclub: duration must be greater than zero")
	ErrInvalidAmount         = errors.New("runclub: invalid amount")
	ErrInvalidWithdrawalRule = errors.New("runclub: invalid withdrawal rule")
	ErrClubNotFound          = errors.New("runclub: club not found")
	ErrMemberNotFound        = errors.New("runclub: member not found in club")
	ErrDuplicateMember       = errors.New("runclub: member already exists in club")
	ErrNotAuthorized         = errors.New("runclub: caller is not the club organizer")
	ErrAuthorizationRequired = errors.New("runclub: principal did not authorize the call")
	ErrAlreadyActive         = errors.New("runclub: club is already active")
	ErrClubInactive          = errors.New("runclub: club is not active")
	ErrNotMember             = errors.New("runclub: user is not a member of this club")
	ErrPeriodNotEnded        = errors.New("runclub: club period has not ended yet")
	ErrNoTokensToRedeem      = errors.New("runclub: user has no km tokens to redeem")
	ErrInsufficientPoolFunds = errors.New("runclub: insufficient usdc in club")
	ErrFundsRemaining        = errors.New("runclub: cannot remove club with deposited usdc")
	ErrAlreadyInitialized    = errors.New("runclub: already initialized")
	ErrAmountOverflow        = errors.New("runclub: amount exceeds 128-bit range")
	ErrNilState              = errors.New("runclub: state not configured")
)
