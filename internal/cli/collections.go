package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/prune/store"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List the relationship tables of an entity type",
	Long: `Lists the relationship tables a delete of the entity type would clean up.
Without --type, every configured kind is listed.`,
	Args: cobra.NoArgs,
	RunE: runCollections,
}

var collectionsType string

func init() {
	collectionsCmd.Flags().StringVarP(&collectionsType, "type", "t", "", "Entity type")
	rootCmd.AddCommand(collectionsCmd)
}

func runCollections(cmd *cobra.Command, _ []string) error {
	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}

	kinds := svc.kinds.Kinds()
	if collectionsType != "" {
		k, err := svc.kind(collectionsType)
		if err != nil {
			return err
		}
		kinds = []store.Kind{k}
	}
	if len(kinds) == 0 {
		cmd.Println("No entity types configured")
		return nil
	}

	for _, k := range kinds {
		joins, err := svc.deleter.Resolver().ResolveJoinCollections(cmd.Context(), k)
		if err != nil {
			return fmt.Errorf("failed to resolve collections: %w", err)
		}
		cmd.Printf("%s (%s)\n", k.EntityType(), k.TableName())
		for _, name := range joins {
			cmd.Printf("  join:  %s\n", name)
		}
		if owner, ok := k.(store.ChunkOwner); ok {
			cmd.Printf("  chunk: %s\n", owner.ChunkTableName())
		}
	}
	return nil
}
