package standalone

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"securesign/internal/util"
	"securesign/pkg/domain"
)

// ErrInvalidCredentials matches the auth service's login failure message.
var ErrInvalidCredentials = errors.New("Invalid credentials")

type account struct {
	user         domain.User
	passwordHash []byte
	history      []domain.LoginHistoryEntry
}

// Auth is the in-process account provider for standalone mode. Accounts
// live in memory; tokens are HS256 JWTs signed with the configured
// secret, the same shape the remote auth service issues.
type Auth struct {
	mu       sync.Mutex
	secret   []byte
	tokenTTL time.Duration
	accounts map[string]*account // keyed by lowercased email
	byID     map[string]*account
}

// NewAuth builds the provider. demoEmail/demoHash, when set, seed a
// ready-made account with a pre-computed bcrypt hash.
func NewAuth(secret []byte, demoEmail, demoHash string) *Auth {
	a := &Auth{
		secret:   secret,
		tokenTTL: 24 * time.Hour,
		accounts: make(map[string]*account),
		byID:     make(map[string]*account),
	}
	if demoEmail != "" && demoHash != "" {
		acct := &account{
			user: domain.User{
				ID:        util.NewID(),
				Email:     demoEmail,
				Name:      "Demo User",
				CreatedAt: time.Now().UTC(),
			},
			passwordHash: []byte(demoHash),
		}
		a.accounts[strings.ToLower(demoEmail)] = acct
		a.byID[acct.user.ID] = acct
	}
	return a
}

// Register creates an account, rejecting duplicate emails.
func (a *Auth) Register(name, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := strings.ToLower(email)
	if _, exists := a.accounts[key]; exists {
		return errors.New("email already registered")
	}
	acct := &account{
		user: domain.User{
			ID:        util.NewID(),
			Email:     email,
			Name:      name,
			CreatedAt: time.Now().UTC(),
		},
		passwordHash: hash,
	}
	a.accounts[key] = acct
	a.byID[acct.user.ID] = acct
	return nil
}

// Login checks the credential and issues a token. Failures are recorded
// in the account's login history when the account exists.
func (a *Auth) Login(email, password string) (string, domain.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.accounts[strings.ToLower(email)]
	if !ok {
		return "", domain.User{}, ErrInvalidCredentials
	}
	err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password))
	acct.history = append(acct.history, domain.LoginHistoryEntry{
		ID:        util.NewID(),
		Timestamp: time.Now().UTC(),
		Success:   err == nil,
	})
	if err != nil {
		return "", domain.User{}, ErrInvalidCredentials
	}
	token, err := a.issue(acct.user)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, acct.user, nil
}

// CheckToken reports whether the token parses and has not expired.
func (a *Auth) CheckToken(token string) (bool, error) {
	_, err := a.parse(token)
	return err == nil, nil
}

// Me resolves a token to its account's current profile.
func (a *Auth) Me(token string) (domain.User, error) {
	user, err := a.parse(token)
	if err != nil {
		return domain.User{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if acct, ok := a.byID[user.ID]; ok {
		return acct.user, nil
	}
	return user, nil
}

// LoginHistory lists the token holder's login attempts, newest last.
func (a *Auth) LoginHistory(token string) ([]domain.LoginHistoryEntry, error) {
	user, err := a.parse(token)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.byID[user.ID]
	if !ok {
		return nil, errors.New("account not found")
	}
	out := make([]domain.LoginHistoryEntry, len(acct.history))
	copy(out, acct.history)
	return out, nil
}

// UpdateProfile changes name and organization.
func (a *Auth) UpdateProfile(token, name, organization string) error {
	user, err := a.parse(token)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.byID[user.ID]
	if !ok {
		return errors.New("account not found")
	}
	if name != "" {
		acct.user.Name = name
	}
	if organization != "" {
		acct.user.Organization = organization
	}
	return nil
}

// UpdatePassword rotates the account password after checking the
// current one.
func (a *Auth) UpdatePassword(token, current, next string) error {
	user, err := a.parse(token)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.byID[user.ID]
	if !ok {
		return errors.New("account not found")
	}
	if bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(current)) != nil {
		return errors.New("current password is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	acct.passwordHash = hash
	return nil
}

func (a *Auth) issue(user domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.Name,
		"iat":   now.Unix(),
		"exp":   now.Add(a.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (a *Auth) parse(raw string) (domain.User, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return domain.User{}, fmt.Errorf("invalid token: %w", err)
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return domain.User{ID: sub, Email: email, Name: name}, nil
}
