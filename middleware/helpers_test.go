package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	goLease "github.com/MrEthical07/goLease"
	"github.com/MrEthical07/goLease/leaseid"
	"github.com/MrEthical07/goLease/registry"
)

type staticVerifier map[string]string

func (v staticVerifier) Verify(token string) (string, error) {
	account, ok := v[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return account, nil
}

type failingValidator struct{ err error }

func (f failingValidator) Validate(context.Context, string, string) error { return f.err }

func newTestEngine(t *testing.T) *goLease.Engine {
	t.Helper()
	engine, err := goLease.New().WithStore(registry.NewMemoryStore()).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func register(t *testing.T, engine *goLease.Engine, account string) string {
	t.Helper()
	id, err := leaseid.Mint(time.Now(), "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := engine.Register(context.Background(), account, id, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	return id
}
