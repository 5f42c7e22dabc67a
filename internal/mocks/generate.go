// Package mocks provides mock implementations for testing the portal gateway.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	fetcher := mocks.NewMockProfileFetcher(ctrl)
//	fetcher.EXPECT().FetchProfile(gomock.Any(), "u1").Return(p, nil)
package mocks

// Generate mocks for the resolver, client and audit ports in internal/ports.
// This creates MockProfileFetcher (FetchProfile), MockTokenSource (State, Token)
// and MockAuditRecorder (Record).
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/hredge/portal/internal/ports ProfileFetcher,TokenSource,AuditRecorder
