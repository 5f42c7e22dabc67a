package auth

import (
	"context"
	"slices"
	"sync"

	domainauth "github.com/hredge/portal/internal/domain/auth"
)

// StaticTokenSource reports a fixed session state and hands out one token.
// Every Token call is recorded.
type StaticTokenSource struct {
	mu    sync.Mutex
	state domainauth.SessionState
	token string
	fail  error
	asked []domainauth.TokenRequest
}

func NewStaticTokenSource(state domainauth.SessionState, token string) *StaticTokenSource {
	return &StaticTokenSource{state: state, token: token}
}

// SignedInTokenSource is a source signed in as identityID.
func SignedInTokenSource(identityID, token string) *StaticTokenSource {
	return NewStaticTokenSource(domainauth.SignedInAs(identityID), token)
}

func (s *StaticTokenSource) State(context.Context) domainauth.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *StaticTokenSource) Token(_ context.Context, req domainauth.TokenRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, req)
	if s.fail != nil {
		return "", s.fail
	}
	return s.token, nil
}

// Set swaps the reported state and token, e.g. to simulate sign-out mid-test.
func (s *StaticTokenSource) Set(state domainauth.SessionState, token string) {
	s.mu.Lock()
	s.state, s.token = state, token
	s.mu.Unlock()
}

// FailTokens makes subsequent Token calls return err.
func (s *StaticTokenSource) FailTokens(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *StaticTokenSource) Requests() []domainauth.TokenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.asked)
}
