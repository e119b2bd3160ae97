package core

import "errors"

var (
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrConnectionLost      = errors.New("connection lost")
	ErrConnectionFailed    = errors.New("connection failed")
	ErrNotConnected        = errors.New("not connected to server")
	ErrInvalidState        = errors.New("invalid device state")
	ErrTurnBusy            = errors.New("audio turn is held by the other direction")
	ErrInvalidConfig       = errors.New("invalid config")
)
