package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackboxlabs/blackbox/internal/adapters/sqlite"
	"github.com/blackboxlabs/blackbox/internal/domain"
)

const vaultVerifierTitle = "vault_master_verifier"

// vaultInitCmd sets up the vault master password for a user. The verifier
// is stored as a credential vault item; the plaintext never touches disk.
func vaultInitCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "vault-init",
		Short: "Set up the vault master password",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("BLACKBOX_VAULT_PASSWORD")
			if password == "" {
				var err error
				password, err = promptPassword()
				if err != nil {
					return err
				}
			}
			if len(password) < 8 {
				return fmt.Errorf("master password must be at least 8 characters")
			}

			store, err := sqlite.Open(sqlite.Options{
				Path: cfg.Database.Path,
				Argon2: sqlite.Argon2Params{
					Time:      uint32(cfg.Vault.Argon2Time),
					MemoryKiB: uint32(cfg.Vault.Argon2MemoryKiB),
					Parallel:  uint8(cfg.Vault.Argon2Parallel),
				},
			})
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			verifier, err := store.HashPassword(password)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}

			if _, err := store.StoreVaultItem(cmd.Context(), user,
				vaultVerifierTitle, []byte(verifier), domain.VaultCategoryCredential); err != nil {
				return fmt.Errorf("failed to store verifier: %w", err)
			}

			fmt.Printf("Vault initialized for user %q\n", user)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "default_user", "user to initialize the vault for")
	return cmd
}

func promptPassword() (string, error) {
	fmt.Print("Master password: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
