package cmd

import (
	"errors"
	"strconv"
	"time"

	config "github.com/avataralabs/queuelabs-sub000/configs"
	"github.com/avataralabs/queuelabs-sub000/pkg/utils"
	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token [user_id]",
	Short: "Mint an API bearer token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || userID <= 0 {
			return errors.New("user_id must be a positive integer")
		}

		secret := config.LoadConfig().SecretKey
		if secret == "" {
			return errors.New("SECRET_KEY is not set")
		}

		token, err := utils.GenerateToken(secret, args[0], tokenTTL)
		if err != nil {
			return err
		}
		cmd.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
