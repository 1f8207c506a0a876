package domain

// Question is one entry of a form's ordered question list.
type Question struct {
	ID             string  `json:"uuid"`
	LinkedFieldKey *string `json:"linkedFieldKey,omitempty"`
	Order          int     `json:"order"`
}

// Form is a questionnaire; its questions are kept in display order.
type Form struct {
	UUID      string     `json:"uuid"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// FormModel is a loaded parent record participating in a form.
type FormModel struct {
	Kind           OwnerKind      `json:"-"`
	ID             int64          `json:"-"`
	UUID           string         `json:"uuid"`
	OrganisationID *int64         `json:"-"`
	Properties     map[string]any `json:"properties"`
}

func (m *FormModel) Owner() OwnerReference {
	return OwnerReference{Kind: m.Kind, ID: m.ID}
}

func (m *FormModel) Property(name string) any {
	if m.Properties == nil {
		return nil
	}
	return m.Properties[name]
}

func (m *FormModel) SetProperty(name string, value any) {
	if m.Properties == nil {
		m.Properties = make(map[string]any)
	}
	m.Properties[name] = value
}

// FormModels holds at most one loaded parent per model type.
type FormModels map[OwnerKind]*FormModel

// Require returns the model for kind or a configuration error when the form was not given one.
func (m FormModels) Require(kind OwnerKind) (*FormModel, error) {
	model, ok := m[kind]
	if !ok || model == nil {
		return nil, &ConfigurationError{Reason: "form models do not include " + kind.ModelType()}
	}
	return model, nil
}

// Answers maps question ids to answer values: nil, a scalar, or a list of embedded records.
type Answers map[string]any

// Warning is a data quality anomaly that was skipped instead of failing a sync.
type Warning struct {
	Question string `json:"question,omitempty"`
	Resource string `json:"resource,omitempty"`
	Message  string `json:"message"`
}

// FormSynced is published after a submission has been reconciled.
type FormSynced struct {
	Form      string            `json:"form"`
	Models    map[string]string `json:"models"`
	Questions []string          `json:"questions"`
	Warnings  []Warning         `json:"warnings,omitempty"`
}
