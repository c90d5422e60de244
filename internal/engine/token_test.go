package engine

import (
	"testing"
	"time"

	"tablekit-backend/internal/table"
)

func tokenTestRegistry(t *testing.T) *table.Registry {
	t.Helper()
	def, err := table.New("orders", "orders").
		Column(table.Column{Key: "id", Type: table.ColumnText, Label: "ID", Visible: true}).
		Build()
	if err != nil {
		t.Fatalf("build definition: %v", err)
	}
	reg := table.NewRegistry()
	reg.Register(def)
	return reg
}

func TestToken_RoundTrip(t *testing.T) {
	svc := NewTokenService("secret", time.Hour, tokenTestRegistry(t))

	token, err := svc.Sign("orders", map[string]any{"user": "u1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	def, ctx, appErr := svc.Verify(token)
	if appErr != nil {
		t.Fatalf("verify: %v", appErr)
	}
	if def.Name != "orders" {
		t.Fatalf("expected table orders, got %s", def.Name)
	}
	if ctx["user"] != "u1" {
		t.Fatalf("expected context user u1, got %v", ctx["user"])
	}
}

func TestToken_TamperedByte(t *testing.T) {
	svc := NewTokenService("secret", time.Hour, tokenTestRegistry(t))

	token, err := svc.Sign("orders", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for i := 0; i < len(token); i++ {
		tampered := []byte(token)
		tampered[i] ^= 0x01
		_, _, appErr := svc.Verify(string(tampered))
		if appErr == nil {
			t.Fatalf("expected rejection for tamper at byte %d", i)
		}
	}
}

func TestToken_Expired(t *testing.T) {
	svc := NewTokenService("secret", time.Minute, tokenTestRegistry(t))

	past := time.Now().Add(-2 * time.Minute)
	svc.now = func() time.Time { return past }
	token, err := svc.Sign("orders", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	svc.now = time.Now
	_, _, appErr := svc.Verify(token)
	if appErr == nil || appErr.Code != "EXPIRED_TOKEN" {
		t.Fatalf("expected EXPIRED_TOKEN, got %v", appErr)
	}
}

func TestToken_StaleTableIdentity(t *testing.T) {
	svc := NewTokenService("secret", time.Hour, tokenTestRegistry(t))

	token, err := svc.Sign("removed_table", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, _, appErr := svc.Verify(token)
	if appErr == nil || appErr.Code != "UNKNOWN_TABLE" {
		t.Fatalf("expected UNKNOWN_TABLE for stale identity, got %v", appErr)
	}
}

func TestToken_Garbage(t *testing.T) {
	svc := NewTokenService("secret", time.Hour, tokenTestRegistry(t))
	_, _, appErr := svc.Verify("not-a-token")
	if appErr == nil || appErr.Code != "INVALID_TOKEN" {
		t.Fatalf("expected INVALID_TOKEN, got %v", appErr)
	}
}

func TestToken_DifferentSecretRejected(t *testing.T) {
	reg := tokenTestRegistry(t)
	a := NewTokenService("secret-a", time.Hour, reg)
	b := NewTokenService("secret-b", time.Hour, reg)

	token, err := a.Sign("orders", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, appErr := b.Verify(token); appErr == nil {
		t.Fatal("expected rejection across secrets")
	}
}
