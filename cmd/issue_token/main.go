package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"orderpreview/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	sub := flag.String("sub", "operator", "token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	config.LoadDotEnv()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET must be set")
	}
	if *ttl <= 0 {
		log.Fatal("--ttl must be positive")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": *sub,
		"iat": now.Unix(),
		"exp": now.Add(*ttl).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(signed)
}
