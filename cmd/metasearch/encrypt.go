package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"metasearch/internal/infra/config"
)

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a secret for use in the config file",
		Long: `Encrypt a secret (API key, proxy URL) with the passphrase in
$METASEARCH_CONFIG_KEY. Paste the printed "enc:..." value into the config;
it is decrypted on load when the same passphrase is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv("METASEARCH_CONFIG_KEY")
			if passphrase == "" {
				return errors.New("METASEARCH_CONFIG_KEY is not set")
			}
			enc, err := config.EncryptValue(args[0], passphrase)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), config.SecretPrefix+enc)
			return err
		},
	}
}
