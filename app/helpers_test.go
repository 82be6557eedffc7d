package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"sheetrelay/adapters/excel"
	"sheetrelay/adapters/graph"
	"sheetrelay/internal"
	"sheetrelay/internal/testkit"
)

var quietLogger = internal.NewLogger(internal.LogLevelError)

// newFakeClient wires the real credential provider and Graph client to a fake
func newFakeClient(t *testing.T, fake *testkit.FakeGraph) *graph.Client {
	t.Helper()
	tokens := graph.NewCredentialProvider(graph.CredentialOptions{
		AuthorityURL: fake.URL(),
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		HTTPClient:   fake.Server.Client(),
	})
	return graph.NewClient(tokens, graph.Options{
		BaseURL:     fake.URL(),
		UserEmail:   fake.User,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		HTTPClient:  fake.Server.Client(),
		Logger:      quietLogger,
	})
}

func newTestProvisioner(t *testing.T, fake *testkit.FakeGraph) (*TableProvisioner, *[]time.Duration) {
	t.Helper()
	client := newFakeClient(t, fake)
	builder := excel.NewBuilder(excel.DefaultStyleConfig(), quietLogger)
	p := NewTableProvisioner(client, client, builder, "Schools", 1500*time.Millisecond, quietLogger)

	var mu sync.Mutex
	delays := []time.Duration{}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}
	return p, &delays
}
