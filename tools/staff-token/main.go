// Command staff-token mints an HS256 staff token for local testing and can
// optionally call a scheduling-service route with it.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bridalos/bridalos/libs/auth"
)

func main() {
	var (
		secret  = flag.String("secret", getenv("JWT_SECRET", ""), "HS256 signing secret shared with scheduling-service")
		sub     = flag.String("sub", getenv("STAFF_SUB", "staff-dev"), "subject (staff user id)")
		org     = flag.String("org", getenv("STAFF_ORG", ""), "org_id claim; empty makes a solo account")
		role    = flag.String("role", getenv("STAFF_ROLE", "owner"), "role claim")
		email   = flag.String("email", getenv("STAFF_EMAIL", ""), "email claim")
		ttl     = flag.Duration("ttl", 12*time.Hour, "token lifetime")
		portal  = flag.Bool("portal", false, "also print a fresh client portal token")
		baseURL = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "scheduling-service base url")
		get     = flag.String("get", "", "optional path to GET with the token, e.g. /api/v1/requests")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("JWT_SECRET is required")
	}

	now := time.Now().UTC()
	token, err := auth.SignHS256(auth.Claims{
		Sub:   *sub,
		OrgID: *org,
		Role:  *role,
		Email: *email,
		Iat:   now.Unix(),
		Exp:   now.Add(*ttl).Unix(),
	}, *secret)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Println(token)

	if *portal {
		pt, err := auth.NewPortalToken()
		if err != nil {
			fatal(err.Error())
		}
		fmt.Printf("portal_token=%s\n", pt)
	}

	if *get == "" {
		return
	}
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(*baseURL, "/")+*get, nil)
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	fmt.Printf("status=%d\n%s\n", resp.StatusCode, body)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
