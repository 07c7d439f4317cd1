package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/placementhub/vault/internal/server/config"
	gs "github.com/placementhub/vault/internal/server/grpc"
)

var (
	rotateAddr     string
	rotateTokenEnv string
	rotateFrom     uint32
	rotateTo       uint32
	rotateTimeout  time.Duration
)

func init() {
	rotateKeysCmd.Flags().StringVar(&rotateAddr, "addr", "localhost"+config.DefaultGRPCAddr, "admin gRPC address of the running server")
	rotateKeysCmd.Flags().StringVar(&rotateTokenEnv, "token-env", "VAULT_ADMIN_TOKEN", "environment variable holding an ADMIN session token")
	rotateKeysCmd.Flags().Uint32Var(&rotateFrom, "from", 0, "key version to retire")
	rotateKeysCmd.Flags().Uint32Var(&rotateTo, "to", 0, "key version to re-encrypt with")
	rotateKeysCmd.Flags().DurationVar(&rotateTimeout, "timeout", 30*time.Minute, "overall deadline")
	_ = rotateKeysCmd.MarkFlagRequired("from")
	_ = rotateKeysCmd.MarkFlagRequired("to")
}

// rotate-keys runs inside the server process over gRPC so field writes are
// paused while rows are re-encrypted.
var rotateKeysCmd = &cobra.Command{
	Use:   "rotate-keys",
	Short: "Re-encrypt every stored field from one key version to another",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token := os.Getenv(rotateTokenEnv)
		if token == "" {
			return fmt.Errorf("environment variable %s is empty", rotateTokenEnv)
		}
		if rotateFrom == rotateTo {
			return errors.New("--from and --to must differ")
		}

		conn, err := grpc.NewClient(rotateAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), rotateTimeout)
		defer cancel()

		n, err := gs.RotateKey(ctx, conn, token, rotateFrom, rotateTo)
		if err != nil {
			return fmt.Errorf("rotate keys: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "re-encrypted %d fields from key %d to key %d\n", n, rotateFrom, rotateTo)
		return nil
	},
}
