// Package arith holds the arithmetic functions served by busrpc.
package arith

import (
	"context"
	"errors"
)

var ErrDivisionByZero = errors.New("division by zero")

// Operands are bound from the "x" and "y" request arguments.
type Operands struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Multiply(_ context.Context, in Operands) (float64, error) {
	return in.X * in.Y, nil
}

func Add(_ context.Context, in Operands) (float64, error) {
	return in.X + in.Y, nil
}

func Divide(_ context.Context, in Operands) (float64, error) {
	if in.Y == 0 {
		return 0, ErrDivisionByZero
	}
	return in.X / in.Y, nil
}
