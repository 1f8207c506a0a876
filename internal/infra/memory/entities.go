package memory

import (
	"context"
	"maps"

	"github.com/google/uuid"

	"github.com/totegamma/restoration-forms/internal/domain"
)

// PutEntity inserts or replaces a parent entity. A zero ID is assigned; a missing uuid is generated.
func (m *Store) PutEntity(model domain.FormModel) *domain.FormModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	if model.ID == 0 {
		model.ID = m.id()
	}
	if model.UUID == "" {
		model.UUID = uuid.NewString()
	}
	model.Properties = cloneAttributes(model.Properties)
	for i, e := range m.s.entities {
		if e.Kind == model.Kind && e.ID == model.ID {
			m.s.entities[i] = &model
			return copyEntity(&model)
		}
	}
	m.s.entities = append(m.s.entities, &model)
	return copyEntity(&model)
}

func copyEntity(e *domain.FormModel) *domain.FormModel {
	copied := *e
	copied.Properties = cloneAttributes(e.Properties)
	if copied.Properties == nil {
		copied.Properties = make(map[string]any)
	}
	return &copied
}

// GetByUUID loads a parent entity as a form model.
func (m *Store) GetByUUID(ctx context.Context, kind domain.OwnerKind, id string) (*domain.FormModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.s.entities {
		if e.Kind == kind && e.UUID == id {
			return copyEntity(e), nil
		}
	}
	return nil, domain.NotFoundError{Resource: kind.ModelType()}
}

func (m *Store) UpdateProperties(ctx context.Context, owner domain.OwnerReference, properties map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.s.entities {
		if e.Owner() != owner {
			continue
		}
		if e.Properties == nil {
			e.Properties = make(map[string]any, len(properties))
		}
		maps.Copy(e.Properties, properties)
		return nil
	}
	return domain.NotFoundError{Resource: owner.Kind.ModelType()}
}

func (m *Store) PutForm(form domain.Form) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.forms[form.UUID] = form
}

func (m *Store) GetForm(ctx context.Context, id string) (domain.Form, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	form, ok := m.s.forms[id]
	if !ok {
		return domain.Form{}, domain.NotFoundError{Resource: "form"}
	}
	return form, nil
}
