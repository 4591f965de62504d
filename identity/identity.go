/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-openapi/strfmt"
	"golang.org/x/sync/errgroup"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/docstore"
	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/logging"
	sm "github.com/suparena/storemodel/storagemodels"
)

// DefaultCollection holds user profile documents keyed by account uid.
const DefaultCollection = "Users"

const (
	MsgRegistered     = "User registered successfully"
	MsgRegisterFailed = "Unable to register user"
	MsgLoggedIn       = "User logged in successfully"
	MsgBadCredentials = "Invalid login credentials"
	MsgNeedsVerify    = "Email address needs verification"
	MsgSignedOut      = "User signout!"
	MsgSignOutFailed  = "Unable to complete process"
	MsgAccountDeleted = "Account deleted successfully"
	MsgDeleteFailed   = "unable to delete user account"
)

// Account is an identity provider account.
type Account struct {
	UID           string          `json:"uid"`
	Email         string          `json:"email"`
	EmailVerified bool            `json:"emailVerified"`
	CreatedAt     strfmt.DateTime `json:"createdAt"`
}

// Provider is the external identity provider.
//
// CreateAccount reports duplicates with an error matching errors.ErrEmailInUse
// and malformed addresses with one matching errors.ErrInvalidEmail.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (Account, error)
	SignIn(ctx context.Context, email, password string) (Account, error)
	SignOut(ctx context.Context) error
	DeleteAccount(ctx context.Context, account Account) error
}

// RegisterParams are the arguments of Register.
type RegisterParams struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	UserData map[string]any `json:"userData,omitempty"`
}

// LoginParams are the arguments of Login.
type LoginParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// VerifyEmail rejects accounts whose email is not verified.
	VerifyEmail bool `json:"verifyEmail,omitempty"`
}

// Auth is the account contract layered over a user collection.
type Auth interface {
	Register(ctx context.Context, params RegisterParams) sm.Result
	Login(ctx context.Context, params LoginParams) sm.Result
	Logout(ctx context.Context) sm.Result
	DeleteAccount(ctx context.Context, account Account) sm.Result
}

// IdentityStore composes a user collection store with an identity provider.
type IdentityStore struct {
	store    docstore.Store
	provider Provider
	logger   *slog.Logger
}

var _ Auth = (*IdentityStore)(nil)

// New composes store and provider.
func New(store docstore.Store, provider Provider) (*IdentityStore, error) {
	if store == nil {
		return nil, errors.NewValidationError("store", "must not be nil")
	}
	if provider == nil {
		return nil, errors.NewValidationError("provider", "must not be nil")
	}
	return &IdentityStore{
		store:    store,
		provider: provider,
		logger:   logging.Logger("identity"),
	}, nil
}

// NewWithBackend binds a new DocumentStore on backend to collection, or to
// DefaultCollection when it is empty.
func NewWithBackend(backend datastore.Backend, provider Provider, collection string) (*IdentityStore, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	store, err := docstore.New(backend, collection)
	if err != nil {
		return nil, err
	}
	return New(store, provider)
}

// Store returns the user collection store.
func (s *IdentityStore) Store() docstore.Store { return s.store }

// guard turns a panic escaping an operation into an error envelope.
func (s *IdentityStore) guard(op, message string, res *sm.Result) {
	if r := recover(); r != nil {
		s.logger.Warn("recovered panic", "op", op, "panic", r)
		*res = sm.Failure(message, errors.Fault(fmt.Errorf("panic: %v", r)))
	}
}

// recovered runs fn, reporting a panic as an error. Panics inside errgroup
// goroutines cannot reach guard.
func recovered(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}
}

// Register creates an account, then saves UserData under the account uid.
// The profile write outcome is logged and not reflected in the result.
func (s *IdentityStore) Register(ctx context.Context, params RegisterParams) (res sm.Result) {
	defer s.guard("register", MsgRegisterFailed, &res)

	account, err := s.provider.CreateAccount(ctx, params.Email, params.Password)
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrEmailInUse):
		return sm.Failure(params.Email+" is already in use!", err)
	case errors.Is(err, errors.ErrInvalidEmail):
		return sm.Failure(params.Email+" is an invalid email address", err)
	default:
		s.logger.Debug("create account failed", "error", err)
		return sm.Failure(MsgRegisterFailed, errors.Fault(err))
	}

	if params.UserData != nil {
		if res := s.store.Save(ctx, params.UserData, account.UID); !res.OK() {
			s.logger.Warn("profile write failed", "uid", account.UID, "error", res.Err)
		}
	}
	return sm.Success(MsgRegistered, account)
}

// Login signs in. With VerifyEmail an unverified account is rejected even
// though the credentials were accepted.
func (s *IdentityStore) Login(ctx context.Context, params LoginParams) (res sm.Result) {
	defer s.guard("login", MsgBadCredentials, &res)

	account, err := s.provider.SignIn(ctx, params.Email, params.Password)
	if err != nil {
		s.logger.Debug("sign in failed", "error", err)
		if !errors.Classified(err) {
			err = errors.Join(errors.ErrInvalidCredentials, err)
		}
		return sm.Failure(MsgBadCredentials, err)
	}
	if params.VerifyEmail && !account.EmailVerified {
		return sm.Failure(MsgNeedsVerify, errors.ErrVerificationRequired)
	}
	return sm.Success(MsgLoggedIn, account)
}

// Logout ends the provider session.
func (s *IdentityStore) Logout(ctx context.Context) (res sm.Result) {
	defer s.guard("logout", MsgSignOutFailed, &res)

	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Debug("sign out failed", "error", err)
		return sm.Failure(MsgSignOutFailed, errors.Fault(err))
	}
	return sm.Success(MsgSignedOut, nil)
}

// DeleteAccount deletes the provider account and the profile document
// concurrently. Both are attempted; either failing fails the call.
func (s *IdentityStore) DeleteAccount(ctx context.Context, account Account) (res sm.Result) {
	defer s.guard("deleteAccount", MsgDeleteFailed, &res)

	if strings.TrimSpace(account.UID) == "" {
		return sm.Failure(MsgDeleteFailed, errors.NewValidationError("uid", "must not be empty"))
	}

	var g errgroup.Group
	g.Go(recovered(func() error {
		return s.provider.DeleteAccount(ctx, account)
	}))
	g.Go(recovered(func() error {
		if res := s.store.Delete(ctx, account.UID); !res.OK() {
			return res.Err
		}
		return nil
	}))
	if err := g.Wait(); err != nil {
		s.logger.Debug("delete account failed", "uid", account.UID, "error", err)
		return sm.Failure(MsgDeleteFailed, errors.Fault(err))
	}
	return sm.Success(MsgAccountDeleted, nil)
}
