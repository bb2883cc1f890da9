// Package sinkutils provides the output sinks a received message can be emitted to.
package sinkutils

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/quinnipak/wssrecv/pkg/wssrecv"
)

// PrintingSink writes one "Received: <message>" line per message.
type PrintingSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrintingSink creates a PrintingSink writing to out.
func NewPrintingSink(out io.Writer) *PrintingSink {
	return &PrintingSink{out: out}
}

// Emit writes the message line.
func (p *PrintingSink) Emit(ctx context.Context, msg wssrecv.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprintf(p.out, "Received: %s\n", msg.Data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
