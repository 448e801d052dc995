package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/arenagrid/match-engine/models"
	"github.com/arenagrid/match-engine/repositories"
)

const (
	// Alphabets exclude glyphs that players confuse when typing a code off a
	// stream overlay: 0/O, 1/I/l. The password alphabet is disjoint from the
	// room id alphabet (lowercase only).
	roomIDAlphabet   = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordAlphabet = "abcdefghjkmnpqrstuvwxyz"

	roomIDLength   = 6
	passwordLength = 8

	// Attempt ceiling for the generate-and-check loop. The code space is
	// large enough that hitting this means something else is wrong.
	maxRoomIDAttempts = 25

	// A unique-index violation at write time means another allocation won
	// the check-then-act race; the whole allocation is retried this many
	// times before giving up.
	maxLateCollisionRetries = 3

	DefaultVisibilityWindowMinutes = 5
	DefaultTTLHours                = 6
)

// RoomWindowOptions carries per-call overrides for the visibility window.
// Zero-valued fields fall back to the service defaults; explicit VisibleAt or
// ExpiresAt take precedence over the computed bounds.
type RoomWindowOptions struct {
	VisibilityWindowMinutes int        `json:"visibility_window_minutes,omitempty"`
	TTLHours                int        `json:"ttl_hours,omitempty"`
	VisibleAt               *time.Time `json:"visible_at,omitempty"`
	ExpiresAt               *time.Time `json:"expires_at,omitempty"`
}

// PrepareRoomOptions controls PrepareMatchRoom. RoomID and Password are
// operator overrides; Force re-issues credentials over existing ones.
type PrepareRoomOptions struct {
	Force    bool              `json:"force,omitempty"`
	RoomID   string            `json:"room_id,omitempty"`
	Password string            `json:"password,omitempty"`
	Window   RoomWindowOptions `json:"window,omitempty"`
}

type PrepareRoomResult struct {
	Created bool          `json:"created"`
	Updated bool          `json:"updated"`
	Match   *models.Match `json:"match"`
}

type RoomService interface {
	// EnsureUniqueRoomID returns a room id no other match currently holds.
	// A non-empty candidate is normalized and checked as-is (operator
	// override); otherwise a random code is generated with a bounded retry
	// loop. excludeMatchID exempts the match's own id so re-issuing the same
	// id is not self-blocking.
	EnsureUniqueRoomID(ctx context.Context, candidate string, excludeMatchID int) (string, error)

	// BuildRoomWindow computes the visibility bounds for a room given the
	// match start time and the moment of computation.
	BuildRoomWindow(startTime, now time.Time, opts RoomWindowOptions) (visibleAt, expiresAt time.Time, err error)

	// PrepareMatchRoom allocates credentials and a visibility window for the
	// match and persists them. Idempotent: a match that already has
	// credentials is left untouched unless opts.Force is set.
	PrepareMatchRoom(ctx context.Context, matchID int, opts PrepareRoomOptions) (*PrepareRoomResult, error)

	// SweepExpiredCredentials clears credentials whose expiry has passed.
	// Intended for an external scheduler; the engine never polls on its own.
	SweepExpiredCredentials(ctx context.Context) (int64, error)
}

// RoomServiceConfig tunes the room service. Zero values get defaults: the
// crypto/rand source, time.Now, and the standard window policy.
type RoomServiceConfig struct {
	VisibilityWindowMinutes int
	TTLHours                int
	Rand                    io.Reader
	Now                     func() time.Time
}

type roomService struct {
	matchRepo  repositories.MatchRepository
	rand       io.Reader
	now        func() time.Time
	defVisMins int
	defTTL     int
	logger     *slog.Logger
}

func NewRoomService(matchRepo repositories.MatchRepository, cfg RoomServiceConfig, logger *slog.Logger) RoomService {
	if cfg.VisibilityWindowMinutes <= 0 {
		cfg.VisibilityWindowMinutes = DefaultVisibilityWindowMinutes
	}
	if cfg.TTLHours <= 0 {
		cfg.TTLHours = DefaultTTLHours
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &roomService{
		matchRepo:  matchRepo,
		rand:       cfg.Rand,
		now:        cfg.Now,
		defVisMins: cfg.VisibilityWindowMinutes,
		defTTL:     cfg.TTLHours,
		logger:     logger,
	}
}

// randomCode draws length characters from the alphabet using the service's
// random source. The source is injected so tests can seed it.
func randomCode(src io.Reader, alphabet string, length int) (string, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", fmt.Errorf("reading random source: %w", err)
	}
	code := make([]byte, length)
	for i, b := range buf {
		code[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(code), nil
}

func (s *roomService) EnsureUniqueRoomID(ctx context.Context, candidate string, excludeMatchID int) (string, error) {
	if trimmed := strings.TrimSpace(candidate); trimmed != "" {
		roomID := strings.ToUpper(trimmed)
		inUse, err := s.matchRepo.RoomIDInUse(ctx, roomID, excludeMatchID)
		if err != nil {
			return "", fmt.Errorf("checking room id %q: %w", roomID, err)
		}
		if inUse {
			return "", fmt.Errorf("%w: %q", ErrRoomIDTaken, roomID)
		}
		return roomID, nil
	}

	for attempt := 0; attempt < maxRoomIDAttempts; attempt++ {
		roomID, err := randomCode(s.rand, roomIDAlphabet, roomIDLength)
		if err != nil {
			return "", err
		}
		inUse, err := s.matchRepo.RoomIDInUse(ctx, roomID, excludeMatchID)
		if err != nil {
			return "", fmt.Errorf("checking room id %q: %w", roomID, err)
		}
		if !inUse {
			return roomID, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrRoomIDGenerationExhausted, maxRoomIDAttempts)
}

func (s *roomService) BuildRoomWindow(startTime, now time.Time, opts RoomWindowOptions) (time.Time, time.Time, error) {
	visMinutes := opts.VisibilityWindowMinutes
	if visMinutes == 0 {
		visMinutes = s.defVisMins
	}
	if visMinutes < 1 {
		visMinutes = 1
	}
	ttlHours := opts.TTLHours
	if ttlHours == 0 {
		ttlHours = s.defTTL
	}
	if ttlHours < 1 {
		ttlHours = 1
	}

	visibleAt := startTime.Add(-time.Duration(visMinutes) * time.Minute)
	// Once the start time itself has passed (delayed or suspended match),
	// visibility is clamped forward so it is never scheduled in the past.
	if now.After(startTime) && visibleAt.Before(now) {
		visibleAt = now
	}
	expiresAt := startTime.Add(time.Duration(ttlHours) * time.Hour)

	explicit := false
	if opts.VisibleAt != nil {
		visibleAt = *opts.VisibleAt
		explicit = true
	}
	if opts.ExpiresAt != nil {
		expiresAt = *opts.ExpiresAt
		explicit = true
	}

	if !expiresAt.After(visibleAt) {
		if explicit {
			// The caller asked for an incoherent window; do not silently
			// repair operator-specified bounds.
			return time.Time{}, time.Time{}, fmt.Errorf("%w: visible_at=%s expires_at=%s",
				ErrInvalidRoomWindow, visibleAt.Format(time.RFC3339), expiresAt.Format(time.RFC3339))
		}
		// Both bounds were computed from defaults against a long-past start
		// time; give the room a usable lifetime anyway.
		expiresAt = visibleAt.Add(time.Duration(ttlHours) * time.Hour)
	}
	return visibleAt, expiresAt, nil
}

func (s *roomService) PrepareMatchRoom(ctx context.Context, matchID int, opts PrepareRoomOptions) (*PrepareRoomResult, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("fetching match %d: %w", matchID, err)
	}

	hadCredentials := match.Room != nil && match.Room.RoomID != "" && match.Room.Password != ""
	if hadCredentials && !opts.Force {
		return &PrepareRoomResult{Created: false, Updated: false, Match: match}, nil
	}

	now := s.now()
	visibleAt, expiresAt, err := s.BuildRoomWindow(match.StartTime, now, opts.Window)
	if err != nil {
		return nil, err
	}

	password := strings.TrimSpace(opts.Password)
	if password == "" {
		password, err = randomCode(s.rand, passwordAlphabet, passwordLength)
		if err != nil {
			return nil, err
		}
	}

	operatorRoomID := strings.TrimSpace(opts.RoomID) != ""
	for attempt := 0; attempt < maxLateCollisionRetries; attempt++ {
		roomID, err := s.EnsureUniqueRoomID(ctx, opts.RoomID, match.ID)
		if err != nil {
			return nil, err
		}

		creds := &models.RoomCredentials{
			RoomID:      roomID,
			Password:    password,
			GeneratedAt: now,
			VisibleAt:   visibleAt,
			ExpiresAt:   expiresAt,
		}

		err = s.matchRepo.SetRoomCredentials(ctx, match.ID, creds)
		if errors.Is(err, repositories.ErrRoomIDConflict) {
			// Lost the check-then-act race to a concurrent allocation. The
			// unique index is the backstop; with an operator-chosen id the
			// conflict is surfaced, a generated id is simply re-drawn.
			if operatorRoomID {
				return nil, fmt.Errorf("%w: %q", ErrRoomIDTaken, roomID)
			}
			s.logger.Warn("room id collided at write time, retrying",
				slog.Int("match_id", match.ID), slog.String("room_id", roomID))
			continue
		}
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return nil, ErrMatchNotFound
			}
			return nil, fmt.Errorf("persisting room credentials for match %d: %w", match.ID, err)
		}

		match.Room = creds
		s.logger.Info("match room prepared",
			slog.Int("match_id", match.ID),
			slog.String("room_id", roomID),
			slog.Time("visible_at", visibleAt),
			slog.Time("expires_at", expiresAt),
			slog.Bool("reissued", hadCredentials))
		return &PrepareRoomResult{Created: true, Updated: hadCredentials, Match: match}, nil
	}
	return nil, fmt.Errorf("%w after %d write attempts", ErrRoomIDGenerationExhausted, maxLateCollisionRetries)
}

func (s *roomService) SweepExpiredCredentials(ctx context.Context) (int64, error) {
	swept, err := s.matchRepo.DeleteExpiredCredentials(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired room credentials: %w", err)
	}
	if swept > 0 {
		s.logger.Info("expired room credentials swept", slog.Int64("count", swept))
	}
	return swept, nil
}
