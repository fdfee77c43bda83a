package main

import (
	"flag"
	"log"
	"os"

	"github.com/aussiebroadwan/authkit/internal/app"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
)

func main() {
	genkey := flag.String("genkey", "", "print a new signing key for `alg` (HS256, EdDSA, ES256, RS256) and exit")
	flag.Parse()

	if *genkey != "" {
		key, err := cryptox.GenerateSigningKey(*genkey)
		if err != nil {
			log.Fatalf("failed to generate key: %v", err)
		}
		_, _ = os.Stdout.Write(key)
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
