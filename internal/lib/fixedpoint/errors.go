package fixedpoint

import (
	"errors"
)

var (
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidBps          = errors.New("basis points must be between 0 and 10000")
	ErrDivideByZero        = errors.New("division by zero")
	ErrInvalidAmount       = errors.New("invalid token amount")
)
