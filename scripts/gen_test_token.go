package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"codeberg.org/modelrelay/relay/internal/auth"
)

func main() {
	// load environment
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET not set")
	}

	subject := "admin-local"
	if len(os.Args) > 1 {
		subject = os.Args[1]
	}

	token, err := auth.GenerateJWT(subject, true)
	if err != nil {
		log.Fatalf("Failed to generate JWT: %v", err)
	}

	fmt.Printf("Admin JWT for %q:\n%s\n\n", subject, token)
	fmt.Printf("Export this token for testing:\nexport ADMIN_TOKEN=\"%s\"\n", token)
}
