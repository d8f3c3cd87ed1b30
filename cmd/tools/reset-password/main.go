// Command reset-password overwrites the password of a panel account without
// requiring the current one. Intended for operators locked out of the panel.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"srtpanel/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		username    string
		password    string
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (panel.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&username, "username", storage.DefaultAdminUsername, "Account to reset")
	flag.StringVar(&password, "password", "", "New password for the account")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if strings.TrimSpace(username) == "" {
		fatalf("--username cannot be empty")
	}
	if len(password) < 8 {
		fatalf("--password must be at least 8 characters")
	}

	repo, err := openRepository(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	username = strings.TrimSpace(username)
	if err := repo.SetPassword(username, password); err != nil {
		fatalf("reset password: %v", err)
	}

	fmt.Printf("Password for %s reset successfully.\n", username)
	fmt.Println("Active panel sessions remain valid until they are revoked or expire.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewJSONRepository(jsonPath)
	}
	return storage.NewPostgresRepository(postgresDSN)
}

func closeRepository(repo storage.Repository) {
	type closer interface {
		Close(context.Context) error
	}
	if c, ok := repo.(closer); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}
}
