package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"openclaw/hub/pkg/vault"
)

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a new vault secret key",
	Long: `Generate a fresh base64url-encoded AES-256 key for the credential vault.

Write the key into the vault.secret_key field of the configuration file.
Rotating the key invalidates every credential already stored: re-enter
connection API keys after a rotation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := vault.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genkeyCmd)
}
