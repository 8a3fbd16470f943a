package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storefront-service/internal/api"
)

var (
	tokenName    string
	tokenPincode string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Sign a customer token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		token, err := api.NewToken(cfg.JWTSecret, args[0], tokenName, tokenPincode, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "customer name")
	tokenCmd.Flags().StringVar(&tokenPincode, "pincode", "", "delivery pincode")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
