package session

import (
	"securesign/internal/authclient"
	"securesign/pkg/domain"
)

// Authenticator is the account surface the session manager talks to,
// satisfied by the remote auth service adapter and by the built-in
// standalone provider.
type Authenticator interface {
	Register(name, email, password string) error
	Login(email, password string) (token string, user domain.User, err error)
	CheckToken(token string) (bool, error)
	Me(token string) (domain.User, error)
	LoginHistory(token string) ([]domain.LoginHistoryEntry, error)
	UpdateProfile(token, name, organization string) error
	UpdatePassword(token, current, next string) error
}

// RemoteAuth adapts the auth service HTTP client to Authenticator.
type RemoteAuth struct {
	Client *authclient.Client
}

func (r RemoteAuth) Register(name, email, password string) error {
	return r.Client.Register(name, email, password)
}

func (r RemoteAuth) Login(email, password string) (string, domain.User, error) {
	res, err := r.Client.Login(email, password)
	if err != nil {
		return "", domain.User{}, err
	}
	return res.Token, res.User, nil
}

func (r RemoteAuth) CheckToken(token string) (bool, error) {
	return r.Client.CheckToken(token)
}

func (r RemoteAuth) Me(token string) (domain.User, error) {
	return r.Client.Me(token)
}

func (r RemoteAuth) LoginHistory(token string) ([]domain.LoginHistoryEntry, error) {
	return r.Client.LoginHistory(token)
}

func (r RemoteAuth) UpdateProfile(token, name, organization string) error {
	return r.Client.UpdateProfile(token, name, organization)
}

func (r RemoteAuth) UpdatePassword(token, current, next string) error {
	return r.Client.UpdatePassword(token, current, next)
}
