package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/cryptox"
)

const saltSize = 16

var (
	keygenVersion       uint32
	keygenPassphraseEnv string
	keygenSalt          string
)

func init() {
	keygenCmd.Flags().Uint32Var(&keygenVersion, "version", 1, "key version to prefix the key with")
	keygenCmd.Flags().StringVar(&keygenPassphraseEnv, "passphrase-env", "", "derive the key from the passphrase in this environment variable")
	keygenCmd.Flags().StringVar(&keygenSalt, "salt", "", "base64 salt for --passphrase-env (random when empty)")
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a new ENCRYPTION_KEYS entry",
	Long: `Prints a "version:base64key" entry for ENCRYPTION_KEYS.

Without flags the key is random. With --passphrase-env the key is derived
with argon2id; keep the printed salt to derive the same key again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKeygen(cmd.OutOrStdout(), keygenVersion, os.Getenv, keygenPassphraseEnv, keygenSalt)
	},
}

func runKeygen(out io.Writer, version uint32, getenv func(string) string, passphraseEnv, saltB64 string) error {
	if version == 0 {
		return errors.New("version must be positive")
	}

	var key []byte
	if passphraseEnv == "" {
		k, err := common.GenerateRandByteArray(cryptox.KeySize)
		if err != nil {
			return err
		}
		key = k
	} else {
		passphrase := getenv(passphraseEnv)
		if passphrase == "" {
			return fmt.Errorf("environment variable %s is empty", passphraseEnv)
		}
		var salt []byte
		if saltB64 == "" {
			s, err := common.GenerateRandByteArray(saltSize)
			if err != nil {
				return err
			}
			salt = s
		} else {
			s, err := base64.StdEncoding.DecodeString(saltB64)
			if err != nil {
				return fmt.Errorf("salt is not valid base64: %w", err)
			}
			salt = s
		}
		key = cryptox.DeriveKey([]byte(passphrase), salt)
		fmt.Fprintf(out, "# salt: %s\n", base64.StdEncoding.EncodeToString(salt))
	}
	defer common.WipeByteArray(key)

	fmt.Fprintf(out, "%d:%s\n", version, base64.StdEncoding.EncodeToString(key))
	return nil
}
