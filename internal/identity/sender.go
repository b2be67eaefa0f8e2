package identity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// CodeSender delivers a generated code to an email address.
type CodeSender interface {
	SendCode(ctx context.Context, email, code string) error
}

// WriterSender writes codes to an io.Writer. It is meant for development setups where no
// mail transport exists.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSender creates a sender writing to w.
func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

// SendCode implements CodeSender.
func (s *WriterSender) SendCode(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "verification code for %s: %s\n", email, code); err != nil {
		return fmt.Errorf("failed to write code: %w", err)
	}
	slog.Debug("WriterSender.SendCode: code written", "email", email)
	return nil
}
