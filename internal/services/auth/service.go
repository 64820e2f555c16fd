package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/dragonrealm/internal/dependencies/clock"
	"github.com/mcoot/dragonrealm/internal/model"
	"github.com/mcoot/dragonrealm/internal/storage"
)

// Account constraints
const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 6
)

// EndReason records why a session ended
type EndReason string

const (
	EndLogout     EndReason = "logout"
	EndTerminated EndReason = "terminated"
	EndExpired    EndReason = "expired"
)

// Session represents an authenticated login
type Session struct {
	ID        string
	Token     string
	UserID    model.UserID
	User      model.User
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Claims is the JWT payload carried by a session token
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

// EndHook is called after a session has been removed
type EndHook func(session Session, reason EndReason)

// Service is the identity and session store
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
	cfg     Config

	mu       sync.RWMutex
	sessions map[string]*Session

	hooksMu sync.RWMutex
	hooks   []EndHook

	// compared against for unknown usernames so both failure paths cost a bcrypt check
	dummyHash []byte
}

// Config holds configuration for the auth service
type Config struct {
	SessionDuration time.Duration
	// SigningKey signs session tokens. A random key is generated when empty,
	// which invalidates tokens across restarts.
	SigningKey []byte
	Issuer     string
	BcryptCost int
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration: time.Hour,
		Issuer:          "dragonrealm",
		BcryptCost:      bcrypt.DefaultCost,
	}
}

// New creates a new auth Service
func New(storage storage.Storage, clock clock.Clock, cfg Config, logger *slog.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = defaults.SessionDuration
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaults.Issuer
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = defaults.BcryptCost
	}
	if len(cfg.SigningKey) == 0 {
		cfg.SigningKey = make([]byte, 32)
		_, _ = rand.Read(cfg.SigningKey)
	}

	dummy, _ := bcrypt.GenerateFromPassword([]byte("dragonrealm-dummy-secret"), cfg.BcryptCost)

	return &Service{
		storage:   storage,
		clock:     clock,
		logger:    logger.With(slog.String("component", "auth")),
		cfg:       cfg,
		sessions:  make(map[string]*Session),
		dummyHash: dummy,
	}
}

// OnSessionEnd registers a hook that runs after logout, termination or expiry
func (s *Service) OnSessionEnd(hook EndHook) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, hook)
	s.hooksMu.Unlock()
}

// Register creates a non-admin account and logs it in
func (s *Service) Register(ctx context.Context, username, password, nickname string) (*Session, error) {
	user, err := s.createAccount(ctx, username, password, nickname, false)
	if err != nil {
		return nil, err
	}
	return s.IssueSession(user)
}

// CreateUser creates an account on behalf of an admin. This is the only way
// to create further admin accounts.
func (s *Service) CreateUser(ctx context.Context, caller *Session, username, password, nickname string, isAdmin bool) (*model.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.createAccount(ctx, username, password, nickname, isAdmin)
}

// EnsureAdmin creates the bootstrap admin account if the username is free
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.storage.GetCredentialsByUsername(ctx, username)
	if err == nil {
		s.logger.Info("admin account already present", slog.String("username", username))
		return nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return err
	}

	user, err := s.createAccount(ctx, username, password, username, true)
	if err != nil {
		return err
	}
	s.logger.Info("admin account created", slog.String("user_id", string(user.ID)))
	return nil
}

func (s *Service) createAccount(ctx context.Context, username, password, nickname string, isAdmin bool) (*model.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, model.OutOfRange("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if strings.TrimSpace(nickname) == "" {
		nickname = username
	}
	nickname, err := normalizeNickname(nickname)
	if err != nil {
		return nil, err
	}

	// Check if username exists
	_, err = s.storage.GetCredentialsByUsername(ctx, username)
	if err == nil {
		return nil, model.ErrUsernameExists
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &model.User{
		ID:        model.UserID(uuid.NewString()),
		Username:  username,
		Nickname:  nickname,
		IsAdmin:   isAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	creds := &model.Credentials{
		UserID:       user.ID,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	if err := s.storage.SaveCredentials(ctx, creds); err != nil {
		// another registration claimed the username first
		if delErr := s.storage.DeleteUser(ctx, user.ID); delErr != nil {
			s.logger.Error("failed to remove user after credentials conflict",
				slog.String("user_id", string(user.ID)),
				slog.Any("error", delErr))
		}
		return nil, err
	}

	s.logger.Info("account created",
		slog.String("user_id", string(user.ID)),
		slog.Bool("admin", isAdmin))
	return user, nil
}

// VerifyCredentials checks a username and secret. Unknown users and wrong
// secrets both return ErrInvalidCredentials.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (*model.User, error) {
	creds, err := s.storage.GetCredentialsByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	return s.storage.GetUser(ctx, creds.UserID)
}

// Login verifies credentials and issues a session
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.VerifyCredentials(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.IssueSession(user)
}

// IssueSession creates a session and its signed token
func (s *Service) IssueSession(user *model.User) (*Session, error) {
	now := s.clock.Now()
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		User:      *user,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionDuration),
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   string(user.ID),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	session.Token = token

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.Info("session issued",
		slog.String("session_id", session.ID),
		slog.String("user_id", string(user.ID)))

	out := *session
	return &out, nil
}

// Validate checks a bearer token and returns its live session
func (s *Service) Validate(token string) (*Session, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.cfg.SigningKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.expire(claims.ID)
			return nil, model.ErrSessionExpired
		}
		return nil, model.ErrSessionInvalid
	}
	return s.ValidateSessionID(claims.ID)
}

// ValidateSessionID checks that a session is still live
func (s *Service) ValidateSessionID(id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	var out Session
	if ok {
		out = *session
	}
	s.mu.RUnlock()

	if !ok {
		return nil, model.ErrSessionInvalid
	}
	if !s.clock.Now().Before(out.ExpiresAt) {
		s.expire(id)
		return nil, model.ErrSessionExpired
	}
	return &out, nil
}

// Logout ends the caller's own session
func (s *Service) Logout(session *Session) error {
	if session == nil {
		return model.ErrSessionInvalid
	}
	return s.end(session.ID, EndLogout)
}

// Terminate forcibly ends any session. Admin only.
func (s *Service) Terminate(caller *Session, sessionID string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if err := s.end(sessionID, EndTerminated); err != nil {
		return err
	}
	s.logger.Warn("session terminated by admin",
		slog.String("session_id", sessionID),
		slog.String("admin_id", string(caller.UserID)))
	return nil
}

// ListActiveSessions returns all unexpired sessions, oldest first. Admin only.
func (s *Service) ListActiveSessions(caller *Session) ([]Session, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	s.CleanExpiredSessions()

	s.mu.RLock()
	sessions := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, *session)
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

// UpdateNickname validates and stores a new nickname. Nothing changes on error.
func (s *Service) UpdateNickname(ctx context.Context, userID model.UserID, nickname string) (*model.User, error) {
	nickname, err := normalizeNickname(nickname)
	if err != nil {
		return nil, err
	}
	if err := s.storage.UpdateNickname(ctx, userID, nickname); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, session := range s.sessions {
		if session.UserID == userID {
			session.User.Nickname = nickname
		}
	}
	s.mu.Unlock()

	return s.storage.GetUser(ctx, userID)
}

// RecordLastPosition persists where a user was last seen
func (s *Service) RecordLastPosition(ctx context.Context, userID model.UserID, pos model.Position) error {
	return s.storage.UpdateLastPosition(ctx, userID, pos)
}

// GetUser returns the stored identity for a user
func (s *Service) GetUser(ctx context.Context, userID model.UserID) (*model.User, error) {
	return s.storage.GetUser(ctx, userID)
}

// ListUsers returns every account. Admin only.
func (s *Service) ListUsers(ctx context.Context, caller *Session) ([]*model.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.storage.ListUsers(ctx)
}

// CleanExpiredSessions removes expired sessions (call periodically)
func (s *Service) CleanExpiredSessions() int {
	now := s.clock.Now()

	s.mu.Lock()
	var expired []Session
	for id, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			expired = append(expired, *session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		s.notify(session, EndExpired)
	}
	return len(expired)
}

// SessionCount returns the number of live sessions
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) end(id string, reason EndReason) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return model.ErrSessionNotFound
	}
	s.notify(*session, reason)
	return nil
}

func (s *Service) expire(id string) {
	if id == "" {
		return
	}
	_ = s.end(id, EndExpired)
}

func (s *Service) notify(session Session, reason EndReason) {
	s.logger.Info("session ended",
		slog.String("session_id", session.ID),
		slog.String("user_id", string(session.UserID)),
		slog.String("reason", string(reason)))

	s.hooksMu.RLock()
	hooks := append([]EndHook(nil), s.hooks...)
	s.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(session, reason)
	}
}

func requireAdmin(caller *Session) error {
	if caller == nil || !caller.User.IsAdmin {
		return model.ErrForbidden
	}
	return nil
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return model.OutOfRange("username", fmt.Sprintf("must be between %d and %d characters", MinUsernameLength, MaxUsernameLength))
	}
	for _, r := range username {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return model.Malformed("username", "must not contain whitespace")
		}
	}
	return nil
}

func normalizeNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	n := utf8.RuneCountInString(nickname)
	if n < model.MinNicknameLength || n > model.MaxNicknameLength {
		return "", model.OutOfRange("nickname", fmt.Sprintf("must be between %d and %d characters", model.MinNicknameLength, model.MaxNicknameLength))
	}
	for _, r := range nickname {
		if unicode.IsControl(r) {
			return "", model.Malformed("nickname", "must not contain control characters")
		}
	}
	return nickname, nil
}
