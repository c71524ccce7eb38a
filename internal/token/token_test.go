package token

import (
	"strings"
	"testing"
)

func TestIssueAndVerify(t *testing.T) {
	iss, err := NewIssuer("test-secret", "regflow")
	if err != nil {
		t.Fatal(err)
	}

	raw, err := iss.Issue("jane@example.com", 7, 3)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := iss.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Email != "jane@example.com" || claims.EventID != 7 || claims.FormID != 3 {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestVerify_RejectsForeignSecret(t *testing.T) {
	a, _ := NewIssuer("secret-a", "regflow")
	b, _ := NewIssuer("secret-b", "regflow")

	raw, err := a.Issue("jane@example.com", 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(raw); err == nil {
		t.Error("expected verification failure for foreign secret")
	}
}

func TestVerify_RejectsTamperedToken(t *testing.T) {
	iss, _ := NewIssuer("test-secret", "regflow")
	raw, err := iss.Issue("jane@example.com", 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	tampered := strings.Replace(raw, ".", ".x", 1)
	if _, err := iss.Verify(tampered); err == nil {
		t.Error("expected verification failure for tampered token")
	}
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	if _, err := NewIssuer("", "regflow"); err == nil {
		t.Error("expected error for empty secret")
	}
}
