// Package account signs a customer in and out against the backend and keeps
// the credential vault and session state in step.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/erauner12/shopbook/internal/apiclient"
	"github.com/erauner12/shopbook/internal/credstore"
	"github.com/erauner12/shopbook/internal/session"
)

// Backend endpoints
const (
	LoginPath            = "/customers/login"
	IdentityExchangePath = "/auth/social/google/"
)

var (
	// ErrMissingCredentials is returned before any call when input is empty
	ErrMissingCredentials = errors.New("please enter username and password")

	// ErrNoIDToken is returned when an identity token carries no id_token
	ErrNoIDToken = errors.New("identity token has no id_token")
)

// ErrLoginFailed carries a 2xx response that reported failure or no token
type ErrLoginFailed struct {
	Message string
}

func (e ErrLoginFailed) Error() string {
	if e.Message == "" {
		return "login failed"
	}
	return e.Message
}

// Pipeline is the part of the request pipeline the account service needs
type Pipeline interface {
	Do(ctx context.Context, req apiclient.Request) (*apiclient.Response, error)
	SetTenant(id string)
}

// Sessions is the part of the session manager the account service needs
type Sessions interface {
	Check(ctx context.Context) (session.State, error)
	ForceLogout(reason string)
}

type loginInput struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// Service performs login and logout
type Service struct {
	api      Pipeline
	vault    *credstore.Vault
	sessions Sessions
	validate *validator.Validate
}

// NewService creates an account service
func NewService(api Pipeline, vault *credstore.Vault, sessions Sessions) *Service {
	return &Service{
		api:      api,
		vault:    vault,
		sessions: sessions,
		validate: validator.New(),
	}
}

// Login exchanges a username and password for tokens, stores them with the
// customer profile and re-checks the session.
func (s *Service) Login(ctx context.Context, username, password string) (*credstore.Customer, error) {
	in := loginInput{Username: strings.TrimSpace(username), Password: password}
	if err := s.validate.Struct(in); err != nil {
		return nil, ErrMissingCredentials
	}

	resp, err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   LoginPath,
		Body:   map[string]string{"username": in.Username, "password": in.Password},
	})
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, resp.Body)
}

// LoginWithIdentity exchanges an external identity provider's id_token for
// backend tokens.
func (s *Service) LoginWithIdentity(ctx context.Context, tok *oauth2.Token) (*credstore.Customer, error) {
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, ErrNoIDToken
	}

	resp, err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   IdentityExchangePath,
		Body:   map[string]string{"id_token": idToken},
	})
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, resp.Body)
}

// apply stores the tokens and profile from a login-shaped response
func (s *Service) apply(ctx context.Context, body []byte) (*credstore.Customer, error) {
	res := gjson.ParseBytes(body)

	if ok := res.Get("success"); ok.Exists() && !ok.Bool() {
		return nil, ErrLoginFailed{Message: res.Get("message").String()}
	}

	access := firstString(res, "token", "access")
	refresh := firstString(res, "refreshToken", "refresh")
	if access == "" {
		return nil, ErrLoginFailed{Message: res.Get("message").String()}
	}

	if err := s.vault.SetTokens(ctx, access, refresh); err != nil {
		return nil, fmt.Errorf("failed to store tokens: %w", err)
	}

	user := res.Get("user")
	if !user.Exists() {
		user = res
	}
	customer := credstore.Customer{
		ID:       firstString(user, "id", "_id"),
		Name:     user.Get("name").String(),
		Email:    user.Get("email").String(),
		Role:     user.Get("role").String(),
		Phone:    user.Get("phone").String(),
		Location: user.Get("location").String(),
	}
	if customer.ID != "" {
		if err := s.vault.SetCustomer(ctx, customer); err != nil {
			return nil, fmt.Errorf("failed to store customer profile: %w", err)
		}
	}

	if _, err := s.sessions.Check(ctx); err != nil {
		return nil, err
	}

	log.Info().Str("customerId", customer.ID).Msg("logged in")
	return &customer, nil
}

// Logout clears every stored credential and preference and ends the session
func (s *Service) Logout(ctx context.Context) error {
	if err := s.vault.Clear(ctx); err != nil {
		return err
	}
	s.api.SetTenant("")
	s.sessions.ForceLogout("")

	log.Info().Msg("logged out")
	return nil
}

// firstString returns the first non-empty value among paths; numbers are
// rendered as their text.
func firstString(res gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := res.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
