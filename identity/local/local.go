/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package local is an identity.Provider that keeps bcrypt credentials in a
// collection of a datastore.Backend.
package local

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/identity"
)

// DefaultCollection holds credential documents keyed by normalized email.
const DefaultCollection = "Credentials"

// Provider implements identity.Provider.
type Provider struct {
	backend    datastore.Backend
	collection string
	cost       int

	// mu serializes account creation so duplicate emails are detected.
	mu      sync.Mutex
	session sync.RWMutex
	current *identity.Account
}

var _ identity.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithCollection sets the credential collection.
func WithCollection(name string) Option {
	return func(p *Provider) { p.collection = name }
}

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(p *Provider) { p.cost = cost }
}

// New creates a Provider storing credentials in backend.
func New(backend datastore.Backend, opts ...Option) *Provider {
	p := &Provider{
		backend:    backend,
		collection: DefaultCollection,
		cost:       bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount registers email with a bcrypt hash of password.
func (p *Provider) CreateAccount(ctx context.Context, email, password string) (identity.Account, error) {
	key := normalize(email)
	if !strfmt.IsEmail(key) {
		return identity.Account{}, fmt.Errorf("%w: %q", errors.ErrInvalidEmail, email)
	}
	if password == "" {
		return identity.Account{}, errors.NewValidationError("password", "must not be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	existing, err := p.backend.Get(ctx, p.collection, key)
	if err != nil {
		return identity.Account{}, errors.Fault(err)
	}
	if existing != nil {
		return identity.Account{}, fmt.Errorf("%w: %q", errors.ErrEmailInUse, email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return identity.Account{}, fmt.Errorf("hash password: %w", err)
	}

	account := identity.Account{
		UID:       uuid.NewString(),
		Email:     key,
		CreatedAt: strfmt.DateTime(time.Now().UTC()),
	}
	doc := map[string]any{
		"uid":           account.UID,
		"email":         account.Email,
		"passwordHash":  string(hash),
		"emailVerified": false,
		"createdAt":     account.CreatedAt.String(),
	}
	if err := p.backend.Set(ctx, p.collection, key, doc); err != nil {
		return identity.Account{}, errors.Fault(err)
	}
	return account, nil
}

// SignIn checks the credentials and makes the account the current session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.Account, error) {
	rec, err := p.backend.Get(ctx, p.collection, normalize(email))
	if err != nil {
		return identity.Account{}, errors.Fault(err)
	}
	if rec == nil {
		return identity.Account{}, errors.ErrInvalidCredentials
	}
	hash, _ := rec.Data["passwordHash"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return identity.Account{}, errors.ErrInvalidCredentials
	}

	account := accountOf(rec.Data)
	p.session.Lock()
	p.current = &account
	p.session.Unlock()
	return account, nil
}

// SignOut clears the current session. Signing out without one succeeds.
func (p *Provider) SignOut(ctx context.Context) error {
	p.session.Lock()
	p.current = nil
	p.session.Unlock()
	return nil
}

// Current returns the signed in account.
func (p *Provider) Current() (identity.Account, bool) {
	p.session.RLock()
	defer p.session.RUnlock()
	if p.current == nil {
		return identity.Account{}, false
	}
	return *p.current, true
}

// DeleteAccount removes the credentials of account. The stored uid must match.
func (p *Provider) DeleteAccount(ctx context.Context, account identity.Account) error {
	key := normalize(account.Email)
	rec, err := p.backend.Get(ctx, p.collection, key)
	if err != nil {
		return errors.Fault(err)
	}
	if rec == nil {
		return errors.NewNotFoundError(p.collection, key)
	}
	if uid, _ := rec.Data["uid"].(string); uid != account.UID {
		return fmt.Errorf("%w: uid does not match %q", errors.ErrInvalidCredentials, account.Email)
	}
	if err := p.backend.Delete(ctx, p.collection, key); err != nil {
		return errors.Fault(err)
	}

	p.session.Lock()
	if p.current != nil && p.current.UID == account.UID {
		p.current = nil
	}
	p.session.Unlock()
	return nil
}

// MarkVerified flags the email of an account as verified.
func (p *Provider) MarkVerified(ctx context.Context, email string) error {
	return p.backend.Update(ctx, p.collection, normalize(email), map[string]any{"emailVerified": true})
}

func accountOf(doc map[string]any) identity.Account {
	account := identity.Account{}
	account.UID, _ = doc["uid"].(string)
	account.Email, _ = doc["email"].(string)
	account.EmailVerified, _ = doc["emailVerified"].(bool)
	if s, ok := doc["createdAt"].(string); ok {
		if dt, err := strfmt.ParseDateTime(s); err == nil {
			account.CreatedAt = dt
		}
	}
	return account
}
