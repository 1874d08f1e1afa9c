// Package mock provides an in-process identity service implementing the
// /auth endpoint contract. It backs the package tests and the demo CLI; it is
// not a production identity provider.
package mock

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

const defaultAccessTTL = 15 * time.Minute

type account struct {
	id           int
	username     string
	name         string
	role         string
	permissions  []string
	passwordHash []byte
}

// Option customises the mock service.
type Option func(*Service) error

// WithAccessTTL overrides the access token lifetime; tests use a negative TTL
// to mint already-expired tokens.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		s.accessTTL = ttl
		return nil
	}
}

// WithSigningSecret overrides the HS256 signing secret.
func WithSigningSecret(secret []byte) Option {
	return func(s *Service) error {
		s.secret = secret
		return nil
	}
}

// WithUser registers an additional account.
func WithUser(username, password, name, role string, permissions ...string) Option {
	return func(s *Service) error {
		return s.addUser(username, password, name, role, permissions)
	}
}

// Service is the mock identity server.
type Service struct {
	mu            sync.Mutex
	users         map[string]*account
	refreshTokens map[string]string
	secret        []byte
	accessTTL     time.Duration
	nextID        int
	refreshCalls  int64
}

// New creates a mock identity service seeded with one account per role, all
// using the password "Password1!".
func New(options ...Option) (*Service, error) {
	ret := &Service{
		users:         map[string]*account{},
		refreshTokens: map[string]string{},
		secret:        []byte(uuid.NewString()),
		accessTTL:     defaultAccessTTL,
		nextID:        1,
	}
	seed := []struct {
		username, name, role string
	}{
		{"admin", "System Administrator", "admin"},
		{"manager", "Project Manager", "manager"},
		{"internal", "Internal User", "internal"},
		{"external", "External User", "external"},
		{"user", "Regular User", "user"},
	}
	for _, each := range seed {
		if err := ret.addUser(each.username, "Password1!", each.name, each.role, nil); err != nil {
			return nil, err
		}
	}
	for _, opt := range options {
		if err := opt(ret); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func (s *Service) addUser(username, password, name, role string, permissions []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &account{
		id:           s.nextID,
		username:     username,
		name:         name,
		role:         role,
		permissions:  permissions,
		passwordHash: hash,
	}
	s.nextID++
	return nil
}

// Handler returns the routed HTTP surface of the mock service.
func (s *Service) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	router.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	router.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	return router
}

// RefreshCalls returns how many times the refresh endpoint has been hit;
// tests use it to assert the single-flight property.
func (s *Service) RefreshCalls() int64 {
	return atomic.LoadInt64(&s.refreshCalls)
}

// SetAccessTTL changes the lifetime applied to subsequently minted access
// tokens; tests combine a negative initial TTL with a later positive one to
// exercise the expiry and refresh paths.
func (s *Service) SetAccessTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = ttl
}

// RevokeRefreshTokens invalidates every outstanding refresh token so the next
// refresh is rejected.
func (s *Service) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = map[string]string{}
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	s.mu.Lock()
	user, ok := s.users[request.Username]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(user.passwordHash, []byte(request.Password)) != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid username or password.")
		return
	}
	s.issueTokens(w, http.StatusOK, user)
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	s.mu.Lock()
	_, exists := s.users[request.Username]
	s.mu.Unlock()
	if exists {
		writeMessage(w, http.StatusConflict, "That username is already taken.")
		return
	}
	if err := s.addUser(request.Username, request.Password, request.Name, "user", nil); err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to register user.")
		return
	}
	s.mu.Lock()
	user := s.users[request.Username]
	s.mu.Unlock()
	s.issueTokens(w, http.StatusCreated, user)
}

func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&s.refreshCalls, 1)
	var request struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.RefreshToken == "" {
		writeMessage(w, http.StatusBadRequest, "Refresh token was not provided.")
		return
	}
	s.mu.Lock()
	username, ok := s.refreshTokens[request.RefreshToken]
	user := s.users[username]
	s.mu.Unlock()
	if !ok || user == nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid refresh token.")
		return
	}
	accessToken, err := s.createAccessToken(user)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to mint token.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken": accessToken,
		"user":        userView(user),
	})
}

func (s *Service) handleLogout(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "Signed out.")
}

func (s *Service) handleMe(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		writeMessage(w, http.StatusUnauthorized, "Not authenticated.")
		return
	}
	username, err := s.verifyAccessToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Not authenticated.")
		return
	}
	s.mu.Lock()
	user := s.users[username]
	s.mu.Unlock()
	if user == nil {
		writeMessage(w, http.StatusUnauthorized, "Not authenticated.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": userView(user)})
}

func (s *Service) issueTokens(w http.ResponseWriter, statusCode int, user *account) {
	accessToken, err := s.createAccessToken(user)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to mint token.")
		return
	}
	refreshToken := "refresh-" + uuid.NewString()
	s.mu.Lock()
	s.refreshTokens[refreshToken] = user.username
	s.mu.Unlock()
	writeJSON(w, statusCode, map[string]interface{}{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
		"user":         userView(user),
	})
}

func userView(user *account) map[string]interface{} {
	return map[string]interface{}{
		"id":          user.id,
		"username":    user.username,
		"name":        user.name,
		"role":        user.role,
		"permissions": user.permissions,
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"message": message})
}
