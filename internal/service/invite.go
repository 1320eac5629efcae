package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tagfer/tagfer-server/internal/logging"
	"github.com/tagfer/tagfer-server/internal/phone"
	"github.com/tagfer/tagfer-server/internal/sms"
	"github.com/tagfer/tagfer-server/internal/task"
)

// InviteService texts people a referral link to join.
type InviteService struct {
	sender    sms.Sender
	phones    *phone.Normalizer
	profiles  *ProfileService
	tasks     *task.Group
	referrals int
	logger    *slog.Logger
}

// NewInviteService creates an InviteService. referrals is the number of
// tokens advertised in every invite.
func NewInviteService(
	sender sms.Sender,
	phones *phone.Normalizer,
	profiles *ProfileService,
	tasks *task.Group,
	referrals int,
	logger *slog.Logger,
) *InviteService {
	return &InviteService{
		sender:    sender,
		phones:    phones,
		profiles:  profiles,
		tasks:     tasks,
		referrals: referrals,
		logger:    logger,
	}
}

// Message is the invite text sent on behalf of fullName.
func (s *InviteService) Message(fullName, tagferID string) string {
	return fmt.Sprintf(
		"%s has invited you to join Tagfer. Sign up using their referral link and get %d tokens for free! %s",
		fullName, s.referrals, s.profiles.ReferralLink(tagferID),
	)
}

// SendMassInvites texts every number in the background. All messages go out
// concurrently; failures do not stop the others and are joined into the
// handle's error.
func (s *InviteService) SendMassInvites(ctx context.Context, numbers []string, fullName, tagferID string) *task.Handle {
	body := s.Message(fullName, tagferID)
	return s.tasks.Go(ctx, "massInvites", func(ctx context.Context) error {
		var (
			mu   sync.Mutex
			errs []error
			g    errgroup.Group
		)
		for _, raw := range numbers {
			g.Go(func() error {
				err := s.send(ctx, raw, body)
				if err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()

		s.logger.Info("invites sent",
			slog.String("tagferId", tagferID),
			slog.Int("total", len(numbers)),
			slog.Int("failed", len(errs)),
		)
		return errors.Join(errs...)
	})
}

func (s *InviteService) send(ctx context.Context, raw, body string) error {
	to, err := s.phones.Normalize(raw)
	if err != nil {
		return fmt.Errorf("invite %s: %w", logging.Mask(raw), err)
	}
	if err := s.sender.Send(ctx, to, body); err != nil {
		return fmt.Errorf("invite %s: %w", logging.Mask(to), err)
	}
	return nil
}
