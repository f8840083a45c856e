package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/storeauth/cookiecrypt"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh CIPHER_KEY and SESSION_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := cookiecrypt.GenerateKey()
			if err != nil {
				return err
			}
			var secret [32]byte
			if _, err := rand.Read(secret[:]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "CIPHER_KEY=%s\n", key)
			fmt.Fprintf(cmd.OutOrStdout(), "SESSION_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(secret[:]))
			return nil
		},
	}
}
