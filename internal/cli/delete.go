package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/spf13/cobra"

	"github.com/jacentio/prune/cascade"
	"github.com/jacentio/prune/store"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete entities and everything referencing them",
	Long: `Deletes entities of one type by ID (--id, repeatable) or by attribute
match (--where attr=value, repeatable and combined with AND). Relationship
records and chunks are removed alongside the entities.

With --transaction all deletes are applied in one DynamoDB transaction.`,
	Example: `  prune delete --type author --id a1 --id a2
  prune delete --type author --where genre=scifi --transaction`,
	Args: cobra.NoArgs,
	RunE: runDelete,
}

var (
	deleteType        string
	deleteIDs         []string
	deleteWhere       []string
	deleteTransaction bool
)

func init() {
	deleteCmd.Flags().StringVarP(&deleteType, "type", "t", "", "Entity type to delete")
	deleteCmd.Flags().StringArrayVar(&deleteIDs, "id", nil, "Entity ID (repeatable)")
	deleteCmd.Flags().StringArrayVar(&deleteWhere, "where", nil, "attr=value condition (repeatable)")
	deleteCmd.Flags().BoolVar(&deleteTransaction, "transaction", false, "Apply all deletes in one transaction")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, _ []string) error {
	if len(deleteIDs) > 0 && len(deleteWhere) > 0 {
		return errors.New("--id and --where are mutually exclusive")
	}
	if len(deleteIDs) == 0 && len(deleteWhere) == 0 {
		return errors.New("one of --id or --where is required")
	}

	var cond expression.ConditionBuilder
	if len(deleteWhere) > 0 {
		var err error
		if cond, err = parseWhere(deleteWhere); err != nil {
			return err
		}
	}

	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}
	kind, err := svc.kind(deleteType)
	if err != nil {
		return err
	}

	run := func(ctx context.Context, opts cascade.Options) (store.DeleteResult, error) {
		if len(deleteIDs) > 0 {
			return svc.deleter.DeleteIDs(ctx, kind, deleteIDs, opts)
		}
		return svc.deleter.DeleteWhere(ctx, kind, cond, opts)
	}

	ctx := cmd.Context()
	var result store.DeleteResult
	if deleteTransaction {
		err = svc.store.WithTransaction(ctx, func(session *store.Session) error {
			var err error
			result, err = run(ctx, cascade.Options{Session: session})
			return err
		})
	} else {
		result, err = run(ctx, cascade.Options{})
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind.EntityType(), err)
	}

	cmd.Printf("Deleted %d %s entities\n", result.DeletedCount, kind.EntityType())
	return nil
}

// parseWhere builds an AND of attr=value equality conditions.
func parseWhere(clauses []string) (expression.ConditionBuilder, error) {
	var conds []expression.ConditionBuilder
	for _, clause := range clauses {
		name, value, ok := strings.Cut(clause, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return expression.ConditionBuilder{}, fmt.Errorf("invalid --where %q: want attr=value", clause)
		}
		conds = append(conds, expression.Name(name).Equal(expression.Value(value)))
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return expression.And(conds[0], conds[1], conds[2:]...), nil
}
