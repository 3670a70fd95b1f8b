package connector

import "errors"

var (
	ErrNotPlugged        = errors.New("connector is not plugged")
	ErrAlreadyPlugged    = errors.New("connector is already plugged")
	ErrNotPreparing      = errors.New("connector is not in Preparing status")
	ErrSessionActive     = errors.New("a session is already active")
	ErrAuthorizing       = errors.New("authorization is in progress")
	ErrEmptyIdTag        = errors.New("id tag is empty")
	ErrNoTransaction     = errors.New("no active transaction")
	ErrRemoteSession     = errors.New("remote session cannot be stopped locally")
	ErrTransactionActive = errors.New("transaction is active")
	ErrNotFaulted        = errors.New("connector is not faulted")
	ErrInvalidErrorCode  = errors.New("invalid error code")
)
