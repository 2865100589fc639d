// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command aip-keygen mints an Ed25519 key pair for a bidder or
// platform. The private key stays with the signer; the public half is
// pasted into the server's roster or platform configuration.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/luxfi/aip/pkg/transport"
)

var (
	outPrefix = flag.String("out", "bidder", "Output file prefix (<prefix>.key and <prefix>.pub)")
	force     = flag.Bool("force", false, "Overwrite existing files")
)

func main() {
	flag.Parse()

	pub, priv, err := transport.GenerateKeyPair()
	if err != nil {
		log.Fatalf("Failed to generate key pair: %v", err)
	}
	privPEM, err := transport.EncodePrivateKeyPEM(priv)
	if err != nil {
		log.Fatalf("Failed to encode private key: %v", err)
	}
	pubPEM, err := transport.EncodePublicKeyPEM(pub)
	if err != nil {
		log.Fatalf("Failed to encode public key: %v", err)
	}

	keyFile := *outPrefix + ".key"
	pubFile := *outPrefix + ".pub"
	if !*force {
		for _, f := range []string{keyFile, pubFile} {
			if _, err := os.Stat(f); err == nil {
				log.Fatalf("%s already exists (use --force to overwrite)", f)
			}
		}
	}
	if err := os.WriteFile(keyFile, privPEM, 0o600); err != nil {
		log.Fatalf("Failed to write %s: %v", keyFile, err)
	}
	if err := os.WriteFile(pubFile, pubPEM, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", pubFile, err)
	}

	fmt.Printf("Wrote %s and %s\n", keyFile, pubFile)
	fmt.Println("\nRoster public_key value:")
	fmt.Print(string(pubPEM))
}
