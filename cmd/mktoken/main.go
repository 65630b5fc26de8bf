// mktoken mints a session token for a user id, for local testing against a
// dev server. The secret must match the server's JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/auth"
)

func main() {
	secret := flag.String("secret", "dev-secret-change-me", "JWT signing secret")
	userID := flag.String("user", "", "User UUID")
	ttl := flag.Duration("ttl", 720*time.Hour, "Token lifetime")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: mktoken -user <user-uuid> [-secret <secret>] [-ttl <duration>]")
		os.Exit(1)
	}

	id, err := uuid.Parse(*userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid user id: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.NewManager(*secret, *ttl).Issue(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
