package chatflow

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestUserIDFromToken(t *testing.T) {
	t.Run("user_id claim", func(t *testing.T) {
		id, err := UserIDFromToken(signedToken(t, jwt.MapClaims{"user_id": 7}))
		if err != nil {
			t.Fatal(err)
		}
		if id != 7 {
			t.Fatalf("expected 7, got %d", id)
		}
	})

	t.Run("numeric sub string", func(t *testing.T) {
		id, err := UserIDFromToken(signedToken(t, jwt.MapClaims{"sub": "42"}))
		if err != nil {
			t.Fatal(err)
		}
		if id != 42 {
			t.Fatalf("expected 42, got %d", id)
		}
	})

	t.Run("user_id wins over sub", func(t *testing.T) {
		id, err := UserIDFromToken(signedToken(t, jwt.MapClaims{"user_id": 7, "sub": "42"}))
		if err != nil {
			t.Fatal(err)
		}
		if id != 7 {
			t.Fatalf("expected user_id claim to win, got %d", id)
		}
	})

	t.Run("no id claim", func(t *testing.T) {
		if _, err := UserIDFromToken(signedToken(t, jwt.MapClaims{"email": "ada@example.com"})); err == nil {
			t.Fatal("expected error for missing id claim")
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if _, err := UserIDFromToken("not-a-jwt"); err == nil {
			t.Fatal("expected parse error")
		}
	})
}
