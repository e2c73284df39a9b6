// Package stream provides DynamoDB Streams handlers for cascade deletes.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/prune/cascade"
	"github.com/jacentio/prune/store"
)

// Deleter cascades a set of entity deletes.
type Deleter interface {
	DeleteIDs(ctx context.Context, kind store.Kind, ids []string, opts cascade.Options) (store.DeleteResult, error)
}

// Handler processes DynamoDB stream events for cascade deletes.
type Handler struct {
	deleter  Deleter
	registry *store.Registry
	idAttr   string
	logger   *slog.Logger
}

// NewHandler creates a new stream handler. Only tables of kinds in registry
// are cascaded; idAttr names the key attribute holding the entity ID.
func NewHandler(d Deleter, registry *store.Registry, idAttr string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = store.NewRegistry()
	}
	if idAttr == "" {
		idAttr = store.DefaultConfig().IDAttribute
	}
	return &Handler{
		deleter:  d,
		registry: registry,
		idAttr:   idAttr,
		logger:   logger,
	}
}

// HandleRemove cascades REMOVE events from primary tables, whether they come
// from TTL expiry or from a direct delete. The entity itself is already gone;
// deleting it again is a no-op, so the whole batch is safe to retry.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleRemove(ctx context.Context, event events.DynamoDBEvent) error {
	var (
		order  []string
		tables = make(map[string][]string)
	)
	for _, record := range event.Records {
		table, id, ok := h.removed(record)
		if !ok {
			continue
		}
		if _, seen := tables[table]; !seen {
			order = append(order, table)
		}
		tables[table] = append(tables[table], id)
	}

	for _, table := range order {
		kind, ok := h.registry.ByTable(table)
		if !ok {
			h.logger.Debug("skipping unregistered table", "table", table)
			continue
		}
		ids := tables[table]
		result, err := h.deleter.DeleteIDs(ctx, kind, ids, cascade.Options{})
		if err != nil {
			h.logger.Error("failed to cascade removed entities",
				"table", table,
				"ids", len(ids),
				"error", err,
			)
			return fmt.Errorf("cascade %s: %w", table, err)
		}
		h.logger.Info("cascaded removed entities",
			"entityType", kind.EntityType(),
			"ids", len(ids),
			"deleted", result.DeletedCount,
		)
	}
	return nil
}

// removed returns the source table and entity ID of a REMOVE record.
func (h *Handler) removed(record events.DynamoDBEventRecord) (string, string, bool) {
	if record.EventName != string(events.DynamoDBOperationTypeRemove) {
		return "", "", false
	}
	table := tableFromARN(record.EventSourceArn)
	if v, ok := record.Change.Keys[h.idAttr]; ok && v.DataType() != events.DataTypeString {
		// Entity IDs are always strings.
		h.logger.Warn("skipping remove record with non-string id",
			"eventID", record.EventID,
			"table", table,
		)
		return "", "", false
	}
	id := getStringAttr(record.Change.Keys, h.idAttr)
	if table == "" || id == "" {
		h.logger.Warn("skipping remove record without table or id",
			"eventID", record.EventID,
			"source", record.EventSourceArn,
		)
		return "", "", false
	}
	if isTTLExpiry(record) {
		h.logger.Debug("entity expired",
			"table", table,
			"id", id,
			"ttl", getNumberAttr(record.Change.OldImage, store.TTLAttribute),
		)
	}
	return table, id, true
}

// tableFromARN extracts the table name from a stream ARN of the form
// arn:aws:dynamodb:region:account:table/<name>/stream/<label>.
func tableFromARN(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

// isTTLExpiry reports whether DynamoDB's TTL process removed the item.
func isTTLExpiry(record events.DynamoDBEventRecord) bool {
	return record.UserIdentity != nil &&
		record.UserIdentity.Type == "Service" &&
		record.UserIdentity.PrincipalID == "dynamodb.amazonaws.com"
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
// Attributes of any other type read as empty.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}
