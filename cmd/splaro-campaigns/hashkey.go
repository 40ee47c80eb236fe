package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Hash an API key for api.key_hash",
	RunE:  runHashKey,
}

func runHashKey(cmd *cobra.Command, args []string) error {
	fmt.Print("API key: ")
	key, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}

	fmt.Print("Confirm API key: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}

	if string(key) != string(confirm) {
		return fmt.Errorf("keys do not match")
	}

	hash, err := hashKey(key)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Add this to the configuration file:")
	fmt.Printf("api:\n  key_hash: %q\n", hash)
	return nil
}

func hashKey(key []byte) (string, error) {
	if len(key) < 16 {
		return "", fmt.Errorf("API key must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword(key, bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}
