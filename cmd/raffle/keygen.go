package main

import (
	"fmt"

	"raffle/internal/oracle"

	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a BLS key pair for the bls oracle",
	Long: `Generate a BLS key pair on the bn256 curve.

Put the private key in ORACLE_BLS_PRIVATE_KEY and publish the public key so
anyone can verify draw proofs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		private, public, err := oracle.GenerateKey()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ORACLE_BLS_PRIVATE_KEY=%s\n", private)
		fmt.Fprintf(out, "public key: %s\n", public)
		return nil
	},
}
