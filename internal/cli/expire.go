package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var expireCmd = &cobra.Command{
	Use:   "expire [id...]",
	Short: "Schedule entities for TTL deletion",
	Long: `Sets the TTL attribute on entities so DynamoDB removes them. The stream
handler cascades the removal to relationship and chunk tables.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExpire,
}

var (
	expireType  string
	expireAfter time.Duration
)

func init() {
	expireCmd.Flags().StringVarP(&expireType, "type", "t", "", "Entity type")
	expireCmd.Flags().DurationVar(&expireAfter, "after", 0, "Delay before expiry")
	rootCmd.AddCommand(expireCmd)
}

func runExpire(cmd *cobra.Command, args []string) error {
	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}
	kind, err := svc.kind(expireType)
	if err != nil {
		return err
	}

	at := time.Now().Add(expireAfter)
	for _, id := range args {
		if err := svc.store.Expire(cmd.Context(), kind, id, at); err != nil {
			return fmt.Errorf("failed to expire %s %s: %w", kind.EntityType(), id, err)
		}
	}
	cmd.Printf("Expiring %d %s entities at %s\n", len(args), kind.EntityType(), at.UTC().Format(time.RFC3339))
	return nil
}
