// Package text holds the string functions served by busrpc.
package text

import (
	"context"
	"fmt"
	"io"
	"strings"
)

type Input struct {
	Text string `json:"text"`
}

func Upper(_ context.Context, in Input) (string, error) {
	return strings.ToUpper(in.Text), nil
}

func Lower(_ context.Context, in Input) (string, error) {
	return strings.ToLower(in.Text), nil
}

// Printer writes request text to an output stream.
type Printer struct {
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Write prints the text and returns no result.
func (p *Printer) Write(_ context.Context, in Input) (any, error) {
	_, err := fmt.Fprintf(p.out, "log: %s\n", in.Text)
	return nil, err
}
