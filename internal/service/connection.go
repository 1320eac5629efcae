package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/repository"
)

// ConnectionService runs the connection graph: pending requests between
// users, accepted connections and their counters.
//
// Every edge carries a profile slot. A request from A with slot 2 means "A
// shares profile 2 with B"; on accept B picks the slot they share back, and
// each side's accepted edge stores the slot the other side chose.
type ConnectionService struct {
	repo     repository.ConnectionRepository
	profiles *ProfileService
	logger   *slog.Logger
}

// NewConnectionService creates a ConnectionService.
func NewConnectionService(
	repo repository.ConnectionRepository,
	profiles *ProfileService,
	logger *slog.Logger,
) *ConnectionService {
	return &ConnectionService{repo: repo, profiles: profiles, logger: logger}
}

// SendRequest records a request from `from`, sharing fromSlot, to `to`.
// Re-sending replaces the slot. When `to` has auto-accept enabled the
// request is accepted immediately with their configured slot.
func (s *ConnectionService) SendRequest(ctx context.Context, from string, fromSlot int, to string) error {
	if !model.ValidProfileN(fromSlot) {
		return apperror.InvalidProfileNumber(fromSlot)
	}
	to, err := targetID(to, "toTagferId")
	if err != nil {
		return err
	}
	if to == from {
		return apperror.ValidationFailed("toTagferId", "cannot connect with yourself")
	}

	autoSlot, err := s.repo.GetAutoAccept(ctx, to)
	if err != nil {
		return fmt.Errorf("service/connection: reading auto-accept of %s: %w", to, err)
	}

	if err := s.repo.PutRequest(ctx, from, fromSlot, to); err != nil {
		return fmt.Errorf("service/connection: sending request %s→%s: %w", from, to, err)
	}
	s.logger.Info("connection request sent",
		slog.String("from", from),
		slog.String("to", to),
		slog.Int("profileN", fromSlot),
	)

	if model.ValidProfileN(autoSlot) {
		return s.AcceptRequest(ctx, from, fromSlot, to, autoSlot)
	}
	return nil
}

// CancelRequest withdraws the pending from → to request. It succeeds when
// no such request exists.
func (s *ConnectionService) CancelRequest(ctx context.Context, from, to string) error {
	if from == "" || to == "" {
		return apperror.ValidationFailed("tagferId", "both sides of the request are required")
	}
	if err := s.repo.DeleteRequest(ctx, strings.ToLower(from), strings.ToLower(to)); err != nil {
		return fmt.Errorf("service/connection: cancelling request %s→%s: %w", from, to, err)
	}
	return nil
}

// AcceptRequest turns the from → to request into a connection. to is the
// accepting user and toSlot the profile they share back.
//
// The graph write is atomic. The two counter increments run afterwards and
// concurrently; if one fails the connection stands and the counters drift,
// which is logged and reported.
func (s *ConnectionService) AcceptRequest(ctx context.Context, from string, fromSlot int, to string, toSlot int) error {
	if !model.ValidProfileN(fromSlot) {
		return apperror.InvalidProfileNumber(fromSlot)
	}
	if !model.ValidProfileN(toSlot) {
		return apperror.InvalidProfileNumber(toSlot)
	}
	from, err := targetID(from, "fromTagferId")
	if err != nil {
		return err
	}

	if err := s.repo.AcceptRequest(ctx, from, fromSlot, to, toSlot); err != nil {
		return fmt.Errorf("service/connection: accepting %s→%s: %w", from, to, err)
	}

	var g errgroup.Group
	for _, id := range []string{from, to} {
		g.Go(func() error {
			return s.repo.IncrementCount(ctx, id)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("connection counter drift",
			slog.String("from", from),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/connection: incrementing counters: %w", err)
	}

	s.logger.Info("connection accepted",
		slog.String("from", from),
		slog.String("to", to),
		slog.Int("fromProfileN", fromSlot),
		slog.Int("toProfileN", toSlot),
	)
	return nil
}

// GetRequests returns the user's pending requests as lite profiles,
// received first, then sent.
func (s *ConnectionService) GetRequests(ctx context.Context, userID string) (*model.RequestList, error) {
	pending, err := s.repo.PendingRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/connection: listing requests: %w", err)
	}

	var list model.RequestList
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		list.Received, err = s.profiles.LiteProfiles(gctx, pending.Received)
		return err
	})
	g.Go(func() (err error) {
		list.Sent, err = s.profiles.LiteProfiles(gctx, pending.Sent)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetConnections returns the user's connections bucketed by the slot each
// connection shares with them.
func (s *ConnectionService) GetConnections(ctx context.Context, userID string) (*model.ConnectionList, error) {
	edges, err := s.repo.Connections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/connection: listing connections: %w", err)
	}
	lite, err := s.profiles.LiteProfiles(ctx, edges)
	if err != nil {
		return nil, err
	}

	list := model.ConnectionList{
		Profile1: []model.LiteProfile{},
		Profile2: []model.LiteProfile{},
		Profile3: []model.LiteProfile{},
		Profile4: []model.LiteProfile{},
	}
	for _, p := range lite {
		bucket := list.Bucket(p.ProfileN)
		if bucket == nil {
			s.logger.Warn("connection with invalid slot",
				slog.String("owner", userID),
				slog.String("other", p.TagferID),
				slog.Int("profileN", p.ProfileN),
			)
			continue
		}
		*bucket = append(*bucket, p)
	}
	return &list, nil
}

// Count returns the user's connection counter, 0 when never incremented.
func (s *ConnectionService) Count(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.GetCount(ctx, strings.ToLower(userID))
	if err != nil {
		return 0, fmt.Errorf("service/connection: reading count: %w", err)
	}
	return n, nil
}

// Remove deletes the connection between a and b in both directions.
// Counters are left as they are.
func (s *ConnectionService) Remove(ctx context.Context, a, b string) error {
	b, err := targetID(b, "tagferId")
	if err != nil {
		return err
	}
	if err := s.repo.DeleteConnection(ctx, a, b); err != nil {
		return fmt.Errorf("service/connection: removing %s↔%s: %w", a, b, err)
	}
	s.logger.Info("connection removed", slog.String("a", a), slog.String("b", b))
	return nil
}

// SetAutoAccept sets the slot used to accept incoming requests
// automatically. 0 turns auto-accept off.
func (s *ConnectionService) SetAutoAccept(ctx context.Context, userID string, n int) error {
	if n != 0 && !model.ValidProfileN(n) {
		return apperror.InvalidProfileNumber(n)
	}
	if err := s.repo.SetAutoAccept(ctx, userID, n); err != nil {
		return fmt.Errorf("service/connection: setting auto-accept: %w", err)
	}
	return nil
}

func targetID(id, field string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	return id, nil
}
