package memory

import (
	"fmt"
	"io"

	"github.com/go-yaml/yaml"

	"github.com/totegamma/restoration-forms/internal/domain"
)

type fixtureEntity struct {
	Model        string         `yaml:"model"`
	UUID         string         `yaml:"uuid"`
	Organisation string         `yaml:"organisation"`
	Properties   map[string]any `yaml:"properties"`
}

type fixtureQuestion struct {
	UUID           string `yaml:"uuid"`
	LinkedFieldKey string `yaml:"linkedFieldKey"`
	Order          int    `yaml:"order"`
}

type fixtureForm struct {
	UUID      string            `yaml:"uuid"`
	Title     string            `yaml:"title"`
	Questions []fixtureQuestion `yaml:"questions"`
}

type fixtureFile struct {
	Entities []fixtureEntity `yaml:"entities"`
	Forms    []fixtureForm   `yaml:"forms"`
}

// LoadFixtures seeds entities and forms from YAML. Entities may point at an organisation
// listed earlier in the same file by uuid.
func (m *Store) LoadFixtures(r io.Reader) error {
	var file fixtureFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return err
	}

	organisations := make(map[string]int64)
	for _, e := range file.Entities {
		kind, err := domain.ParseModelType(e.Model)
		if err != nil {
			return err
		}
		model := domain.FormModel{Kind: kind, UUID: e.UUID, Properties: normalize(e.Properties).(map[string]any)}
		if e.Organisation != "" {
			id, ok := organisations[e.Organisation]
			if !ok {
				return fmt.Errorf("fixture %s: unknown organisation %s", e.UUID, e.Organisation)
			}
			model.OrganisationID = &id
		}
		stored := m.PutEntity(model)
		if kind == domain.OwnerOrganisation {
			organisations[stored.UUID] = stored.ID
		}
	}

	for _, f := range file.Forms {
		form := domain.Form{UUID: f.UUID, Title: f.Title, Questions: make([]domain.Question, 0, len(f.Questions))}
		for _, q := range f.Questions {
			question := domain.Question{ID: q.UUID, Order: q.Order}
			if q.LinkedFieldKey != "" {
				key := q.LinkedFieldKey
				question.LinkedFieldKey = &key
			}
			form.Questions = append(form.Questions, question)
		}
		m.PutForm(form)
	}
	return nil
}

// normalize turns the map[interface{}]interface{} values yaml produces into JSON friendly maps.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	}
	return value
}
