package emulator

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
)

// TestToken is the bearer token accepted by a TestServer.
const TestToken = "secret_test_token"

// TestServer is an emulator running on httptest for use in tests of
// packages that talk to the database API.
type TestServer struct {
	*httptest.Server
	Store *Store
}

// NewTestServer starts an emulator backed by a temporary bbolt file.
// Both are cleaned up when the test ends.
func NewTestServer(t testing.TB) *TestServer {
	t.Helper()

	st, err := New(filepath.Join(t.TempDir(), "emulator.db"))
	if err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	if err := st.AddToken(TestToken); err != nil {
		t.Fatalf("Failed to add token: %v", err)
	}

	server := httptest.NewServer(NewRouter(st))
	t.Cleanup(server.Close)

	return &TestServer{Server: server, Store: st}
}

// Client returns a tablestore client authenticated against the server.
func (s *TestServer) Client(pageSize int) *tablestore.Client {
	return tablestore.NewClient(tablestore.ClientConfig{
		APIURL:   s.URL,
		Token:    TestToken,
		Version:  "2022-06-28",
		PageSize: pageSize,
	})
}

// CreateDatabase seeds an empty database with the given id.
func (s *TestServer) CreateDatabase(t testing.TB, id string, properties map[string]tablestore.PropertySchema) {
	t.Helper()
	if properties == nil {
		properties = map[string]tablestore.PropertySchema{}
	}
	if _, err := s.Store.CreateDatabase(id, id, properties); err != nil {
		t.Fatalf("Failed to create database %s: %v", id, err)
	}
}
