package store

// Registry holds the known entity kinds, indexed by type name and table.
type Registry struct {
	kinds   []Kind
	byType  map[string]Kind
	byTable map[string]Kind
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds:   []Kind{},
		byType:  make(map[string]Kind),
		byTable: make(map[string]Kind),
	}
}

// Register adds a kind to the registry, replacing any kind with the same type name.
func (r *Registry) Register(kind Kind) {
	if old, ok := r.byType[kind.EntityType()]; ok {
		delete(r.byTable, old.TableName())
		for i, k := range r.kinds {
			if k.EntityType() == kind.EntityType() {
				r.kinds = append(r.kinds[:i], r.kinds[i+1:]...)
				break
			}
		}
	}
	r.kinds = append(r.kinds, kind)
	r.byType[kind.EntityType()] = kind
	r.byTable[kind.TableName()] = kind
}

// Lookup returns the kind registered under an entity type name.
func (r *Registry) Lookup(entityType string) (Kind, bool) {
	k, ok := r.byType[entityType]
	return k, ok
}

// ByTable returns the kind whose primary table is table.
// Relationship and chunk tables are never matched.
func (r *Registry) ByTable(table string) (Kind, bool) {
	k, ok := r.byTable[table]
	return k, ok
}

// Kinds returns all registered kinds in registration order.
func (r *Registry) Kinds() []Kind {
	return r.kinds
}
