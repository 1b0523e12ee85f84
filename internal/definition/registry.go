// Package definition is the Monitor Definition Registry (spec.md §4.2):
// an id-indexed, mutex-guarded map of reusable check templates, grounded
// on the id-indexed registry style of the teacher's poller caches
// (internal/poller/state_handler.go's MonitorCache) rather than the
// teacher's cyclic object-graph models.
package definition

import (
	"context"
	"sort"
	"sync"

	"github.com/irisett-go/irisett/internal/errs"
	"github.com/irisett-go/irisett/internal/store"
	"github.com/irisett-go/irisett/internal/tmpl"
)

// Registry holds every known MonitorDefinition in memory, backed by the
// Persistence Gateway for durability. Mutations flush the affected
// definition's cached template expansions.
type Registry struct {
	mu       sync.RWMutex
	byID     map[int64]*store.MonitorDefinition
	byName   map[string]int64
	gw       store.Gateway
	tmplC    *tmpl.Cache
}

func New(gw store.Gateway, tmplCache *tmpl.Cache) *Registry {
	return &Registry{
		byID:   make(map[int64]*store.MonitorDefinition),
		byName: make(map[string]int64),
		gw:     gw,
		tmplC:  tmplCache,
	}
}

// Load populates the registry from the database. Call once at startup.
func (r *Registry) Load(ctx context.Context) error {
	rows, err := r.gw.FetchAll(ctx, `SELECT id, name, description, active, executable_path, argv_template, description_tmpl FROM monitor_definitions`)
	if err != nil {
		return err
	}

	defs := make(map[int64]*store.MonitorDefinition, len(rows))
	names := make(map[string]int64, len(rows))
	for _, row := range rows {
		d := &store.MonitorDefinition{
			ID:              row["id"].(int64),
			Name:            row["name"].(string),
			Description:     asString(row["description"]),
			Active:          asBool(row["active"]),
			ExecutablePath:  asString(row["executable_path"]),
			ArgvTemplate:    asString(row["argv_template"]),
			DescriptionTmpl: asString(row["description_tmpl"]),
		}
		defs[d.ID] = d
		names[d.Name] = d.ID
	}

	paramRows, err := r.gw.FetchAll(ctx, `SELECT id, definition_id, name, display_name, description, required, default_value FROM monitor_definition_params`)
	if err != nil {
		return err
	}
	for _, row := range paramRows {
		defID := row["definition_id"].(int64)
		d, ok := defs[defID]
		if !ok {
			continue
		}
		d.Params = append(d.Params, store.ParamSpec{
			ID:           row["id"].(int64),
			DefinitionID: defID,
			Name:         asString(row["name"]),
			DisplayName:  asString(row["display_name"]),
			Description:  asString(row["description"]),
			Required:     asBool(row["required"]),
			DefaultValue: asString(row["default_value"]),
		})
	}

	r.mu.Lock()
	r.byID, r.byName = defs, names
	r.mu.Unlock()
	return nil
}

// Get returns the definition with the given id.
func (r *Registry) Get(id int64) (*store.MonitorDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// FindByName looks a definition up by its unique name.
func (r *Registry) FindByName(name string) (*store.MonitorDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// List returns every definition, sorted by id, for stable API/CLI output.
func (r *Registry) List() []*store.MonitorDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*store.MonitorDefinition, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Create persists a new definition and adds it to the registry.
func (r *Registry) Create(ctx context.Context, d *store.MonitorDefinition) (int64, error) {
	if d.Name == "" || d.ExecutablePath == "" || d.ArgvTemplate == "" {
		return 0, errs.New(errs.KindInvalidArguments, "name, executable_path and argv_template are required")
	}
	if _, exists := r.FindByName(d.Name); exists {
		return 0, errs.New(errs.KindInvalidArguments, "a definition named "+d.Name+" already exists")
	}

	var id int64
	err := r.gw.Transact(ctx, func(ctx context.Context, c store.Cursor) error {
		var err error
		id, err = c.Execute(ctx,
			`INSERT INTO monitor_definitions (name, description, active, executable_path, argv_template, description_tmpl) VALUES (?, ?, ?, ?, ?, ?)`,
			d.Name, d.Description, d.Active, d.ExecutablePath, d.ArgvTemplate, d.DescriptionTmpl)
		if err != nil {
			return err
		}
		for i := range d.Params {
			d.Params[i].DefinitionID = id
			if _, err := c.Execute(ctx,
				`INSERT INTO monitor_definition_params (definition_id, name, display_name, description, required, default_value) VALUES (?, ?, ?, ?, ?, ?)`,
				id, d.Params[i].Name, d.Params[i].DisplayName, d.Params[i].Description, d.Params[i].Required, d.Params[i].DefaultValue); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	d.ID = id
	r.mu.Lock()
	r.byID[id] = d
	r.byName[d.Name] = id
	r.mu.Unlock()
	return id, nil
}

// Update replaces a definition's templates/metadata and flushes every
// cached expansion derived from it, since existing instances' argv/
// description text is now stale.
func (r *Registry) Update(ctx context.Context, id int64, mutate func(*store.MonitorDefinition)) error {
	r.mu.Lock()
	d, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return errs.New(errs.KindInvalidArguments, "unknown definition id")
	}
	mutate(d)
	r.mu.Unlock()

	_, err := r.gw.Execute(ctx,
		`UPDATE monitor_definitions SET name=?, description=?, active=?, executable_path=?, argv_template=?, description_tmpl=? WHERE id=?`,
		d.Name, d.Description, d.Active, d.ExecutablePath, d.ArgvTemplate, d.DescriptionTmpl, id)
	if err != nil {
		return err
	}

	if r.tmplC != nil {
		r.tmplC.FlushAll()
	}
	return nil
}

// Delete removes a definition. Callers must have already verified no
// monitor instance still references it (referential-integrity guard
// lives in the activemonitor registry, which owns that relationship).
func (r *Registry) Delete(ctx context.Context, id int64, inUse func(int64) bool) error {
	if inUse != nil && inUse(id) {
		return errs.New(errs.KindInvalidArguments, "definition is still referenced by active monitor instances")
	}
	if _, err := r.gw.Execute(ctx, `DELETE FROM monitor_definitions WHERE id=?`, id); err != nil {
		return err
	}

	r.mu.Lock()
	if d, ok := r.byID[id]; ok {
		delete(r.byName, d.Name)
	}
	delete(r.byID, id)
	r.mu.Unlock()
	return nil
}

// SetParameter upserts a ParamSpec by name on the given definition and
// flushes every cached expansion, since the change affects argument
// validation and template expansion for every instance of this definition.
func (r *Registry) SetParameter(ctx context.Context, defID int64, param store.ParamSpec) error {
	r.mu.Lock()
	d, ok := r.byID[defID]
	if !ok {
		r.mu.Unlock()
		return errs.New(errs.KindInvalidArguments, "unknown definition id")
	}
	r.mu.Unlock()

	if param.Name == "" {
		return errs.New(errs.KindInvalidArguments, "parameter name is required")
	}

	var id int64
	err := r.gw.Transact(ctx, func(ctx context.Context, c store.Cursor) error {
		existing, err := c.FetchScalar(ctx, `SELECT id FROM monitor_definition_params WHERE definition_id=? AND name=?`, defID, param.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			id = existing.(int64)
			_, err = c.Execute(ctx,
				`UPDATE monitor_definition_params SET display_name=?, description=?, required=?, default_value=? WHERE id=?`,
				param.DisplayName, param.Description, param.Required, param.DefaultValue, id)
			return err
		}
		id, err = c.Execute(ctx,
			`INSERT INTO monitor_definition_params (definition_id, name, display_name, description, required, default_value) VALUES (?, ?, ?, ?, ?, ?)`,
			defID, param.Name, param.DisplayName, param.Description, param.Required, param.DefaultValue)
		return err
	})
	if err != nil {
		return err
	}

	param.ID = id
	param.DefinitionID = defID

	r.mu.Lock()
	d = r.byID[defID]
	replaced := false
	for i := range d.Params {
		if d.Params[i].Name == param.Name {
			d.Params[i] = param
			replaced = true
			break
		}
	}
	if !replaced {
		d.Params = append(d.Params, param)
	}
	r.mu.Unlock()

	if r.tmplC != nil {
		r.tmplC.FlushAll()
	}
	return nil
}

// DeleteParameter removes a ParamSpec by name from the given definition.
func (r *Registry) DeleteParameter(ctx context.Context, defID int64, name string) error {
	r.mu.RLock()
	d, ok := r.byID[defID]
	r.mu.RUnlock()
	if !ok {
		return errs.New(errs.KindInvalidArguments, "unknown definition id")
	}

	if _, err := r.gw.Execute(ctx, `DELETE FROM monitor_definition_params WHERE definition_id=? AND name=?`, defID, name); err != nil {
		return err
	}

	r.mu.Lock()
	d = r.byID[defID]
	kept := d.Params[:0]
	for _, p := range d.Params {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	d.Params = kept
	r.mu.Unlock()

	if r.tmplC != nil {
		r.tmplC.FlushAll()
	}
	return nil
}

// ValidateArgs checks a proposed argument map against a definition's
// ParamSpec list: every key in args must name a known parameter, and,
// unless permitMissing is set, every required parameter must be present.
func (r *Registry) ValidateArgs(id int64, args map[string]string, permitMissing bool) error {
	d, ok := r.Get(id)
	if !ok {
		return errs.New(errs.KindInvalidArguments, "unknown definition id")
	}

	known := make(map[string]bool, len(d.Params))
	for _, p := range d.Params {
		known[p.Name] = true
	}
	for key := range args {
		if !known[key] {
			return errs.New(errs.KindInvalidArguments, "unknown argument: "+key)
		}
	}
	if !permitMissing {
		for _, p := range d.Params {
			if !p.Required {
				continue
			}
			if _, present := args[p.Name]; !present {
				return errs.New(errs.KindInvalidArguments, "missing required argument: "+p.Name)
			}
		}
	}
	return nil
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return ""
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	default:
		return false
	}
}
