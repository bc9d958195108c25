package wallet

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown wallets, accounts, payments or sessions.
	ErrNotFound = errors.New("wallet: not found")
	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("wallet: invalid argument")
	// ErrInvalidAmount is returned when a money amount is not positive.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	// ErrDuplicateAccount is returned when an account or wallet already exists.
	ErrDuplicateAccount = errors.New("wallet: duplicate account")
	// ErrDuplicateSession is returned when a session id was already credited.
	ErrDuplicateSession = errors.New("wallet: duplicate session")
	// ErrInsufficientBalance is returned when there is nothing to settle.
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")
	// ErrNoSurplus is returned when total paid does not exceed the target.
	ErrNoSurplus = errors.New("wallet: no surplus")
	// ErrBusy is returned when a wallet could not be locked in time or was
	// modified concurrently.
	ErrBusy = errors.New("wallet: busy")
)
