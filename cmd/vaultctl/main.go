// Command vaultctl is the operator tool for the vault: key generation,
// schema migrations, key rotation and admin account creation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "vaultctl",
	Short:         "Operator tool for the placement vault",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rotateKeysCmd)
	rootCmd.AddCommand(createUserCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
