package chatflow

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDFromToken extracts the local user id from the access token's claims.
// The token is parsed without signature verification: the client treats it as
// opaque credential material owned by the server and never validates or
// refreshes it.
func UserIDFromToken(token string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("failed to parse token: %w", err)
	}

	for _, key := range []string{"user_id", "id", "sub"} {
		v, ok := claims[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int64(n), nil
		case string:
			id, err := strconv.ParseInt(n, 10, 64)
			if err == nil {
				return id, nil
			}
		}
	}
	return 0, fmt.Errorf("token carries no user id claim")
}
