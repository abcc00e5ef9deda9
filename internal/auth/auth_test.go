package auth

import (
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testKeys(t *testing.T) ([]byte, []byte) {
	t.Helper()
	hash := make([]byte, 32)
	block := make([]byte, 32)
	if _, err := rand.Read(hash); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(block); err != nil {
		t.Fatal(err)
	}
	return hash, block
}

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "hunter2") {
		t.Fatalf("correct password rejected")
	}
	if CheckPassword(hash, "hunter3") {
		t.Fatalf("wrong password accepted")
	}
}

func TestTokenRoundtrip(t *testing.T) {
	t.Parallel()

	hk, bk := testKeys(t)
	s := NewStore(nil, hk, bk, time.Hour)

	tok, err := s.IssueToken(42)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	uid, ok := s.VerifyToken(tok)
	if !ok || uid != 42 {
		t.Fatalf("expected uid 42, got %d ok=%v", uid, ok)
	}

	if _, ok := s.VerifyToken(tok + "x"); ok {
		t.Fatalf("tampered token accepted")
	}
	if _, ok := s.VerifyToken("garbage"); ok {
		t.Fatalf("garbage token accepted")
	}

	hk2, bk2 := testKeys(t)
	other := NewStore(nil, hk2, bk2, time.Hour)
	if _, ok := other.VerifyToken(tok); ok {
		t.Fatalf("token verified under different keys")
	}
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	hk, bk := testKeys(t)
	s := NewStore(nil, hk, bk, time.Hour)

	var gotUID int64
	h := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// missing header
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// valid token
	tok, err := s.IssueToken(7)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if gotUID != 7 {
		t.Fatalf("expected uid 7 in context, got %d", gotUID)
	}
}
