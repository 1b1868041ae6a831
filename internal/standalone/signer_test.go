package standalone

import (
	"bytes"
	"testing"
)

func TestSignThenVerify(t *testing.T) {
	s := NewSigner([]byte("signer-secret"))
	if err := s.GenerateKeys("user-1"); err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	doc := []byte("original content")
	env, err := s.Sign("contract.pdf", bytes.NewReader(doc), "aW1n", "user-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if env.DocumentHash == "" || env.Signature == "" || len(env.Package) == 0 {
		t.Fatalf("incomplete envelope: %+v", env)
	}

	verdict, err := s.Verify("contract.pdf", bytes.NewReader(doc), env.Package, "aW1n")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("expected valid verdict, got %+v", verdict)
	}
}

func TestVerifyDetectsModifiedDocument(t *testing.T) {
	s := NewSigner([]byte("signer-secret"))
	if err := s.GenerateKeys("user-1"); err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	env, err := s.Sign("contract.pdf", bytes.NewReader([]byte("original")), "aW1n", "user-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	verdict, err := s.Verify("contract.pdf", bytes.NewReader([]byte("tampered")), env.Package, "aW1n")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verdict.Valid {
		t.Fatal("modified document reported valid")
	}
	if verdict.Message != "Document has been modified since signing" {
		t.Fatalf("unexpected message: %q", verdict.Message)
	}
}

func TestSignRequiresKeys(t *testing.T) {
	s := NewSigner([]byte("signer-secret"))
	if _, err := s.Sign("contract.pdf", bytes.NewReader([]byte("x")), "aW1n", "user-1"); err == nil {
		t.Fatal("expected error without keys")
	}
}

func TestSignIsDeterministic(t *testing.T) {
	s := NewSigner([]byte("signer-secret"))
	if err := s.GenerateKeys("user-1"); err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	a, err := s.Sign("contract.pdf", bytes.NewReader([]byte("same")), "aW1n", "user-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	b, err := s.Sign("contract.pdf", bytes.NewReader([]byte("same")), "aW1n", "user-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if a.Signature != b.Signature || a.DocumentHash != b.DocumentHash {
		t.Fatal("signatures over identical content differ")
	}
}
