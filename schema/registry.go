package schema

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/qubird/crudo/models"
)

// Registry holds every exposed ModelDescriptor. It is built once at
// startup and read-only afterwards, except for the cached row counts
// living inside the descriptors. Handlers receive it explicitly; there
// is no package-level instance.
type Registry struct {
	models []*models.ModelDescriptor
	byName map[string]*models.ModelDescriptor
}

func NewRegistry(descriptors []*models.ModelDescriptor) *Registry {
	r := &Registry{
		models: descriptors,
		byName: make(map[string]*models.ModelDescriptor, len(descriptors)),
	}
	for _, m := range descriptors {
		r.byName[m.TableName] = m
	}
	return r
}

// Models returns the descriptors in schema declaration order.
func (r *Registry) Models() []*models.ModelDescriptor {
	return r.models
}

func (r *Registry) Get(table string) (*models.ModelDescriptor, error) {
	m, ok := r.byName[table]
	if !ok {
		return nil, &models.NotFoundError{Message: fmt.Sprintf("unknown table: %s", table)}
	}
	return m, nil
}

// RegisterAction attaches a host-supplied action to a table. Call this
// during startup only; descriptors are not synchronized for writes.
func (r *Registry) RegisterAction(table string, action *models.ActionDescriptor) error {
	m, ok := r.byName[table]
	if !ok {
		return errors.Errorf("register action %q: unknown table %s", action.Name, table)
	}
	if action.Fn == nil {
		return errors.Errorf("register action %q on %s: nil callable", action.Name, table)
	}
	if _, exists := m.Action(action.Name); exists {
		return errors.Errorf("register action %q on %s: name already taken", action.Name, table)
	}
	if action.Role == "" {
		action.Role = models.RoleAdmin
	}

	m.Actions = append(m.Actions, action)
	return nil
}
