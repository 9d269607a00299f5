package email

import (
	"context"
	"errors"
)

// Sender define la interfaz para avisos de seguridad por correo.
type Sender interface {
	// SendEmailChangedNotice avisa a la direccion anterior que el email de la
	// cuenta cambio.
	SendEmailChangedNotice(ctx context.Context, toEmail string, newEmail string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendEmailChangedNotice(_ context.Context, _ string, _ string) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
