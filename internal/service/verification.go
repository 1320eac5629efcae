package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/logging"
	"github.com/tagfer/tagfer-server/internal/repository"
	"github.com/tagfer/tagfer-server/internal/sms"
)

// Verification codes are uniform over [codeMin, codeMin+codeSpan).
const (
	codeMin  = 100000
	codeSpan = 900000
)

// VerificationService creates, sends and checks SMS verification codes.
type VerificationService struct {
	cache  repository.VerificationCache
	sender sms.Sender
	ttl    time.Duration
	logger *slog.Logger
}

// NewVerificationService creates a VerificationService. Codes expire after ttl.
func NewVerificationService(
	cache repository.VerificationCache,
	sender sms.Sender,
	ttl time.Duration,
	logger *slog.Logger,
) *VerificationService {
	return &VerificationService{cache: cache, sender: sender, ttl: ttl, logger: logger}
}

// CreateCode generates a new 6-digit code for phone, replacing any pending
// one, and returns it.
func (s *VerificationService) CreateCode(ctx context.Context, phone string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("service/verification: generating code: %w", err)
	}
	code := fmt.Sprintf("%06d", codeMin+n.Int64())

	if err := s.cache.PutCode(ctx, phone, code, s.ttl); err != nil {
		return "", fmt.Errorf("service/verification: storing code: %w", err)
	}
	return code, nil
}

// SendCode creates a code and texts it to phone.
func (s *VerificationService) SendCode(ctx context.Context, phone string) error {
	code, err := s.CreateCode(ctx, phone)
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, phone, "Tagfer PIN: "+code); err != nil {
		s.logger.Error("sending verification code",
			slog.String("phone", logging.Mask(phone)),
			slog.String("error", err.Error()),
		)
		return apperror.Network(err)
	}
	s.logger.Info("verification code sent", slog.String("phone", logging.Mask(phone)))
	return nil
}

// CheckCode reports whether candidate equals the pending code for phone.
// A missing or expired code is apperror.PhoneNotCached. Checking does not
// consume the code.
func (s *VerificationService) CheckCode(ctx context.Context, phone, candidate string) (bool, error) {
	code, err := s.cache.GetCode(ctx, phone)
	if err != nil {
		if errors.Is(err, apperror.PhoneNotCached) {
			return false, err
		}
		return false, fmt.Errorf("service/verification: reading code: %w", err)
	}
	return code == candidate, nil
}
