package testsupport

import (
	"net/http/httptest"
	"testing"

	"boletodesk/internal/backend"
	"boletodesk/internal/mockbackend"
)

// MockBackend is a running mock backend with an authenticated client.
type MockBackend struct {
	Server  *mockbackend.Server
	BaseURL string
	Token   string
	Client  *backend.Client
}

// StartMockBackend serves a mock backend over httptest and logs in.
func StartMockBackend(t testing.TB, opts ...mockbackend.Option) *MockBackend {
	t.Helper()

	server := mockbackend.New(opts...)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	baseURL := httpServer.URL + "/api/v1"
	token, err := server.IssueToken(mockbackend.DefaultEmail)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	client, err := backend.New(baseURL, backend.WithToken(token))
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	return &MockBackend{Server: server, BaseURL: baseURL, Token: token, Client: client}
}
