package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/skip2/go-qrcode"
	"golang.org/x/sync/errgroup"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/auth"
	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/repository"
	"github.com/tagfer/tagfer-server/internal/storage"
)

const qrCodeSize = 300

// ProfileConfig holds the ProfileService settings.
type ProfileConfig struct {
	// PageSize is the number of profiles per suggestion page.
	PageSize int
	// PageTokenTTL bounds how long a suggestion page token stays valid.
	PageTokenTTL time.Duration
	// BaseURL prefixes tagferIds in referral links and QR codes.
	BaseURL string
	// DefaultProfileName names the profile created at signup.
	DefaultProfileName string
}

// ProfileService manages the four profile slots of each user and the
// suggestion directory built from their first slot.
type ProfileService struct {
	profiles    repository.ProfileRepository
	connections repository.ConnectionRepository
	bucket      storage.Bucket
	tokens      *auth.TokenService
	cfg         ProfileConfig
	logger      *slog.Logger
}

// NewProfileService creates a ProfileService.
func NewProfileService(
	profiles repository.ProfileRepository,
	connections repository.ConnectionRepository,
	bucket storage.Bucket,
	tokens *auth.TokenService,
	cfg ProfileConfig,
	logger *slog.Logger,
) *ProfileService {
	if cfg.PageSize < 1 {
		cfg.PageSize = 10
	}
	return &ProfileService{
		profiles:    profiles,
		connections: connections,
		bucket:      bucket,
		tokens:      tokens,
		cfg:         cfg,
		logger:      logger,
	}
}

// =========================================================================
// SLOTS
// =========================================================================

// Get returns slot n of userID. An empty slot yields an empty profile, not
// an error.
func (s *ProfileService) Get(ctx context.Context, userID string, n int) (*model.Profile, error) {
	if !model.ValidProfileN(n) {
		return nil, apperror.InvalidProfileNumber(n)
	}
	p, err := s.profiles.GetProfile(ctx, userID, n)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return &model.Profile{}, nil
		}
		return nil, fmt.Errorf("service/profile: getting %s/%d: %w", userID, n, err)
	}
	return p, nil
}

// GetShared returns the profile target shares with viewer: the slot stored
// on viewer's connection edge, or slot 1 when they are not connected.
func (s *ProfileService) GetShared(ctx context.Context, viewer, target string) (*model.Profile, error) {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return nil, apperror.ValidationFailed("tagferId", "tagferId is required")
	}
	n, ok, err := s.connections.ConnectionSlot(ctx, viewer, target)
	if err != nil {
		return nil, fmt.Errorf("service/profile: reading connection slot: %w", err)
	}
	if !ok || !model.ValidProfileN(n) {
		n = model.DefaultProfileN
	}
	return s.Get(ctx, target, n)
}

// Update merges a partial profile document into slot n. fields is the raw
// JSON object from the client; unknown keys are ignored. A "photoBytes"
// field is uploaded and replaced by the resulting photoURL.
func (s *ProfileService) Update(ctx context.Context, userID string, n int, fields map[string]any) error {
	if !model.ValidProfileN(n) {
		return apperror.InvalidProfileNumber(n)
	}

	var u model.ProfileUpdate
	if err := decodeProfileUpdate(fields, &u); err != nil {
		return err
	}

	if u.PhotoBytes != nil && *u.PhotoBytes != "" {
		url, err := s.UploadPhoto(ctx, userID, n, *u.PhotoBytes)
		if err != nil {
			return err
		}
		u.PhotoURL = &url
	}

	current, err := s.Get(ctx, userID, n)
	if err != nil {
		return err
	}
	current.Apply(u)

	if err := s.profiles.PutProfile(ctx, userID, n, current); err != nil {
		return fmt.Errorf("service/profile: writing %s/%d: %w", userID, n, err)
	}
	s.logger.Info("profile updated", slog.String("tagferId", userID), slog.Int("profileN", n))
	return nil
}

// UploadPhoto stores a base64 JPEG as the photo of slot n and returns its URL.
func (s *ProfileService) UploadPhoto(ctx context.Context, userID string, n int, b64 string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", apperror.ValidationFailed("photoBytes", "photoBytes must be base64 encoded")
	}
	name := fmt.Sprintf("%s-profile%d.jpeg", userID, n)
	url, err := s.bucket.Put(ctx, name, data)
	if err != nil {
		s.logger.Error("uploading profile photo",
			slog.String("object", name),
			slog.String("error", err.Error()),
		)
		return "", apperror.Storage(err)
	}
	return url, nil
}

// SignupProfile is the profile part of a signup request.
type SignupProfile struct {
	FullName           string `json:"fullName"`
	JobTitle           string `json:"jobTitle"`
	CompanyName        string `json:"companyName"`
	CompanyEmail       string `json:"companyEmail"`
	CompanyPhoneNumber string `json:"companyPhoneNumber"`
	PhotoBytes         string `json:"photoBytes"`
}

// InitialProfile builds slot 1 for a new user, uploading the photo if one
// was supplied.
func (s *ProfileService) InitialProfile(ctx context.Context, userID string, in SignupProfile) (*model.Profile, error) {
	p := &model.Profile{
		ProfileName: s.cfg.DefaultProfileName,
		FullName:    in.FullName,
		Experience:  model.Experience{JobTitle: in.JobTitle, CompanyName: in.CompanyName},
	}
	if in.CompanyEmail != "" {
		p.Emails = map[string]string{"company": in.CompanyEmail}
	}
	if in.CompanyPhoneNumber != "" {
		p.PhoneNumbers = map[string]string{"company": in.CompanyPhoneNumber}
	}
	if in.PhotoBytes != "" {
		url, err := s.UploadPhoto(ctx, userID, model.DefaultProfileN, in.PhotoBytes)
		if err != nil {
			return nil, err
		}
		p.PhotoURL = url
	}
	return p, nil
}

// QRCode returns a base64 PNG encoding the user's referral link.
func (s *ProfileService) QRCode(_ context.Context, userID string, n int) (string, error) {
	if !model.ValidProfileN(n) {
		return "", apperror.InvalidProfileNumber(n)
	}
	png, err := qrcode.Encode(s.ReferralLink(userID), qrcode.Medium, qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("service/profile: encoding qr code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// ReferralLink is the public URL of userID.
func (s *ProfileService) ReferralLink(userID string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + userID
}

// LookupPhone returns the user registered with the E.164 phone, or "".
func (s *ProfileService) LookupPhone(ctx context.Context, phone string) (string, error) {
	return s.profiles.LookupPhone(ctx, phone)
}

// =========================================================================
// SUGGESTIONS
// =========================================================================

// SuggestPage is one batch of the suggestion directory.
type SuggestPage struct {
	Profiles      []model.LiteProfile `json:"profiles"`
	NextPageToken string              `json:"nextPageToken"`
}

// Suggest returns the next batch of slot-1 profiles, cycling through the
// whole directory in tagferId order.
//
// A page starts at and includes the last key of the previous page, so
// consecutive pages overlap by one entry. When the tail of the directory is
// shorter than a page, the rest is filled from the beginning and placed in
// front of the tail; the next page then continues after that prefix. A
// directory smaller than a page yields each entry once, so such pages are
// short.
func (s *ProfileService) Suggest(ctx context.Context, pageToken string) (*SuggestPage, error) {
	cursor := ""
	if pageToken != "" {
		c, err := s.tokens.Validate(auth.AudiencePage, pageToken)
		if err != nil {
			return nil, apperror.InvalidPageToken
		}
		cursor = c
	}
	size := s.cfg.PageSize

	tail, err := s.profiles.ListProfiles(ctx, cursor, size)
	if err != nil {
		return nil, fmt.Errorf("service/profile: listing profiles: %w", err)
	}
	page := toLite(tail)
	next := lastKey(tail)

	switch {
	case len(tail) == size:
	case cursor == "":
		// The whole directory fits in one page; the next call starts over.
		next = ""
	default:
		head, err := s.profiles.ListProfiles(ctx, "", size-len(tail))
		if err != nil {
			return nil, fmt.Errorf("service/profile: listing profiles: %w", err)
		}
		// A directory smaller than a page would reach the tail again.
		if i := slices.IndexFunc(head, func(p model.Profile) bool { return p.TagferID >= cursor }); i >= 0 {
			head = head[:i]
		}
		page = append(toLite(head), page...)
		if k := lastKey(head); k != "" {
			next = k
		}
	}

	token := ""
	if next != "" {
		token, err = s.tokens.Generate(auth.AudiencePage, next, s.cfg.PageTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("service/profile: issuing page token: %w", err)
		}
	}
	return &SuggestPage{Profiles: page, NextPageToken: token}, nil
}

// =========================================================================
// LITE PROFILES
// =========================================================================

// LiteProfiles resolves each edge to the other user's slot-1 summary, with
// the edge's slot as ProfileN. Lookups run concurrently; output order
// matches edges. Users without a profile yield a summary holding only the
// tagferId.
func (s *ProfileService) LiteProfiles(ctx context.Context, edges []model.Edge) ([]model.LiteProfile, error) {
	out := make([]model.LiteProfile, len(edges))
	g, ctx := errgroup.WithContext(ctx)
	for i, e := range edges {
		g.Go(func() error {
			p, err := s.profiles.GetProfile(ctx, e.UserID, model.DefaultProfileN)
			switch {
			case err == nil:
				out[i] = p.Lite()
			case errors.Is(err, apperror.ErrNotFound):
				out[i] = model.LiteProfile{TagferID: e.UserID}
			default:
				return fmt.Errorf("service/profile: resolving %s: %w", e.UserID, err)
			}
			out[i].ProfileN = e.ProfileN
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func toLite(profiles []model.Profile) []model.LiteProfile {
	out := make([]model.LiteProfile, len(profiles))
	for i := range profiles {
		out[i] = profiles[i].Lite()
	}
	return out
}

func lastKey(profiles []model.Profile) string {
	if len(profiles) == 0 {
		return ""
	}
	return profiles[len(profiles)-1].TagferID
}

func decodeProfileUpdate(fields map[string]any, out *model.ProfileUpdate) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("service/profile: building decoder: %w", err)
	}
	if err := dec.Decode(fields); err != nil {
		return apperror.ValidationFailed("profile", err.Error())
	}
	return nil
}
