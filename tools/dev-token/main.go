// Command dev-token mints HS256 bearer tokens for exercising the gateway
// locally as a client or an admin.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/salonbook/libs/auth"
	"github.com/md-rashed-zaman/salonbook/libs/config"
)

func main() {
	var (
		secret  = flag.String("secret", config.String("JWT_SECRET", "dev-secret"), "HS256 signing secret")
		sub     = flag.String("sub", config.String("DEV_USER_ID", ""), "user id (random when empty)")
		name    = flag.String("name", config.String("DEV_USER_NAME", "Cliente Demo"), "display name")
		email   = flag.String("email", config.String("DEV_USER_EMAIL", "cliente@example.com"), "email")
		role    = flag.String("role", config.String("DEV_ROLE", auth.RoleClient), "client or admin")
		ttl     = flag.Duration("ttl", config.Duration("DEV_TOKEN_TTL", 24*time.Hour), "token lifetime")
		baseURL = flag.String("call", "", "gateway base url; when set, GET /api/v1/appointments/mine with the token")
	)
	flag.Parse()

	claims, err := buildClaims(*sub, *name, *email, *role, time.Now(), *ttl)
	if err != nil {
		fatal(err.Error())
	}
	token, err := auth.SignHS256(claims, *secret)
	if err != nil {
		fatal(err.Error())
	}

	if strings.TrimSpace(*baseURL) == "" {
		fmt.Println(token)
		return
	}

	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(*baseURL, "/")+"/api/v1/appointments/mine", nil)
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("status=%d\n%s\n", resp.StatusCode, body)
}

func buildClaims(sub, name, email, role string, now time.Time, ttl time.Duration) (auth.Claims, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !auth.ValidRole(role) {
		return auth.Claims{}, fmt.Errorf("unsupported role %q (want %s or %s)", role, auth.RoleClient, auth.RoleAdmin)
	}
	if ttl <= 0 {
		return auth.Claims{}, fmt.Errorf("ttl must be positive")
	}
	if strings.TrimSpace(sub) == "" {
		sub = uuid.NewString()
	}
	return auth.Claims{
		Name:  name,
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}, nil
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
