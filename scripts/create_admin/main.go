// Creates or replaces an admin account directly in the database. Useful for
// bootstrap and password resets when the registration endpoint is closed.
package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	dbfs "github.com/gather-app/gather/db"
	"github.com/gather-app/gather/internal/config"
	"github.com/gather-app/gather/internal/db"
	"github.com/gather-app/gather/internal/repository/sqlite"
	"github.com/gather-app/gather/pkg/models"
)

func main() {
	var (
		email    = flag.String("email", "", "Admin email address")
		password = flag.String("password", "", "Admin password (8-72 characters)")
	)
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Usage: create_admin -email admin@example.com -password secret")
		os.Exit(1)
	}
	if len(*password) < 8 || len(*password) > 72 {
		fmt.Fprintln(os.Stderr, "Password must be between 8 and 72 characters")
		os.Exit(1)
	}

	ctx := context.Background()
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DB error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, dbfs.Migrations, embed.FS{}); err != nil {
		fmt.Fprintf(os.Stderr, "Migration error: %v\n", err)
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), cfg.BcryptCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hash error: %v\n", err)
		os.Exit(1)
	}

	repo := sqlite.New(database, nil)
	if existing, err := repo.GetAdminByEmail(ctx, *email); err != nil {
		fmt.Fprintf(os.Stderr, "Lookup error: %v\n", err)
		os.Exit(1)
	} else if existing != nil {
		if err := repo.DeleteAdminByEmail(ctx, *email); err != nil {
			fmt.Fprintf(os.Stderr, "Replace error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Replacing existing admin %s\n", *email)
	}

	admin := &models.Admin{Email: *email, HashedPassword: string(hash), IsActive: true}
	if _, err := repo.CreateAdmin(ctx, admin); err != nil {
		fmt.Fprintf(os.Stderr, "Create error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Admin %s ready (id %d).\n", *email, admin.ID)
}
