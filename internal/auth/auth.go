package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/land-scheduler/internal/db"
)

// Store issues and verifies the opaque bearer tokens the admin API
// uses. Tokens are securecookie-encoded (HMAC + AES) and carry only the
// user id; passwords are bcrypt hashes in the users table.
type Store struct {
	sc *securecookie.SecureCookie
	db *db.DB
}

type ctxKey string

const userIDKey ctxKey = "userID"

const tokenName = "landsched_token"

func NewStore(d *db.DB, hashKey, blockKey []byte, ttl time.Duration) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(ttl.Seconds()))
	return &Store{sc: sc, db: d}
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func (s *Store) CreateUser(ctx context.Context, username, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO users(username, password_bcrypt) VALUES ($1,$2)`, username, hash)
	if db.IsUniqueViolation(err) {
		return errors.New("username already exists")
	}
	return err
}

var ErrInvalidCredentials = errors.New("invalid credentials")

func (s *Store) Authenticate(ctx context.Context, username, password string) (int64, error) {
	var id int64
	var hash string
	err := s.db.QueryRow(ctx, `SELECT id, password_bcrypt FROM users WHERE username=$1`, username).Scan(&id, &hash)
	if db.IsNotFound(db.WrapNotFound(err)) {
		return 0, ErrInvalidCredentials
	}
	if err != nil {
		return 0, err
	}
	if !CheckPassword(hash, password) {
		return 0, ErrInvalidCredentials
	}
	return id, nil
}

func (s *Store) IssueToken(userID int64) (string, error) {
	return s.sc.Encode(tokenName, map[string]any{"uid": userID, "v": 1})
}

// VerifyToken decodes a bearer token. Expiry is enforced by the
// securecookie timestamp baked in at encode time.
func (s *Store) VerifyToken(token string) (int64, bool) {
	val := map[string]any{}
	if err := s.sc.Decode(tokenName, token, &val); err != nil {
		return 0, false
	}
	switch uid := val["uid"].(type) {
	case int64:
		return uid, uid > 0
	case float64:
		return int64(uid), uid > 0
	default:
		return 0, false
	}
}

// RequireAuth guards API routes with "Authorization: Bearer <token>".
func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(w)
			return
		}
		uid, ok := s.VerifyToken(token)
		if !ok {
			unauthorized(w)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"message":"unauthorized"}`))
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	uid, ok := ctx.Value(userIDKey).(int64)
	return uid, ok
}
