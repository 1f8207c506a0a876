package linkedfield

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/totegamma/restoration-forms/internal/domain"
)

type mediaCollection struct {
	dbCollection string
	multiple     bool
}

// mediaConfiguration lists the media collections each owner kind exposes to forms.
var mediaConfiguration = map[domain.OwnerKind]map[string]mediaCollection{
	domain.OwnerOrganisation: {
		"logo":               {dbCollection: "logo"},
		"cover":              {dbCollection: "cover"},
		"legal_registration": {dbCollection: "legal_registration", multiple: true},
		"reference":          {dbCollection: "reference", multiple: true},
	},
	domain.OwnerProjectPitch: {
		"cover":                    {dbCollection: "cover"},
		"detailed_project_budget":  {dbCollection: "detailed_project_budget"},
		"proof_of_land_tenure_mou": {dbCollection: "proof_of_land_tenure_mou", multiple: true},
	},
	domain.OwnerProject: {
		"media":     {dbCollection: "media", multiple: true},
		"file":      {dbCollection: "file", multiple: true},
		"photos":    {dbCollection: "photos", multiple: true},
		"cover":     {dbCollection: "cover"},
		"programme": {dbCollection: "programme_submission", multiple: true},
	},
	domain.OwnerSite: {
		"media":                            {dbCollection: "media", multiple: true},
		"photos":                           {dbCollection: "photos", multiple: true},
		"stratification_for_heterogeneity": {dbCollection: "stratification_for_heterogeneity"},
	},
	domain.OwnerNursery: {
		"media":  {dbCollection: "media", multiple: true},
		"photos": {dbCollection: "photos", multiple: true},
	},
	domain.OwnerProjectReport: {
		"media":                  {dbCollection: "media", multiple: true},
		"photos":                 {dbCollection: "photos", multiple: true},
		"socioeconomic_benefits": {dbCollection: "socioeconomic_benefits", multiple: true},
	},
	domain.OwnerSiteReport: {
		"media":        {dbCollection: "media", multiple: true},
		"photos":       {dbCollection: "photos", multiple: true},
		"tree_species": {dbCollection: "tree_species", multiple: true},
	},
	domain.OwnerNurseryReport: {
		"media":  {dbCollection: "media", multiple: true},
		"photos": {dbCollection: "photos", multiple: true},
	},
	domain.OwnerDisturbanceReport: {
		"media": {dbCollection: "media", multiple: true},
	},
}

type fileQuestion struct {
	collection string
	question   string
}

// fileCollector reads media rows; uploads go through the media collaborator.
type fileCollector struct {
	questions map[domain.OwnerKind][]fileQuestion
	order     []domain.OwnerKind
}

func newFileCollector() *fileCollector {
	return &fileCollector{questions: make(map[domain.OwnerKind][]fileQuestion)}
}

func (c *fileCollector) register(field domain.LinkedFieldConfig, kind domain.OwnerKind, questionID string) error {
	if field.Collection == "" {
		return &domain.ConfigurationError{Field: field.Key, Reason: "file field without collection"}
	}
	if _, ok := c.questions[kind]; !ok {
		c.order = append(c.order, kind)
	}
	c.questions[kind] = append(c.questions[kind], fileQuestion{collection: field.Collection, question: questionID})
	return nil
}

func mediaCollectionFor(kind domain.OwnerKind, collection string) (mediaCollection, error) {
	if !kind.SupportsMedia() {
		return mediaCollection{}, &domain.ConfigurationError{Reason: fmt.Sprintf("%s does not support media", kind)}
	}
	config, ok := mediaConfiguration[kind][collection]
	if !ok {
		return mediaCollection{}, &domain.ConfigurationError{Reason: fmt.Sprintf("no media configuration for %s %q", kind, collection)}
	}
	return config, nil
}

func (c *fileCollector) Collect(ctx context.Context, store Store, models domain.FormModels) (domain.Answers, error) {
	answers := make(domain.Answers)
	for _, kind := range c.order {
		model, err := models.Require(kind)
		if err != nil {
			return nil, err
		}

		var collections stringSet
		configs := make([]mediaCollection, len(c.questions[kind]))
		for i, q := range c.questions[kind] {
			config, err := mediaCollectionFor(kind, q.collection)
			if err != nil {
				return nil, err
			}
			configs[i] = config
			collections.add(config.dbCollection)
		}

		media, err := store.ListMedia(ctx, []domain.OwnerReference{model.Owner()}, collections.values)
		if err != nil {
			return nil, errors.Wrap(err, "list media")
		}
		grouped := make(map[string][]domain.MediaRecord)
		for _, m := range media {
			grouped[m.CollectionName] = append(grouped[m.CollectionName], toMediaRecord(m))
		}

		for i, q := range c.questions[kind] {
			records := grouped[configs[i].dbCollection]
			if configs[i].multiple {
				if records == nil {
					records = []domain.MediaRecord{}
				}
				answers[q.question] = records
			} else if len(records) > 0 {
				answers[q.question] = records[0]
			} else {
				answers[q.question] = nil
			}
		}
	}
	return answers, nil
}

func toMediaRecord(m domain.Media) domain.MediaRecord {
	return domain.MediaRecord{
		UUID:     m.UUID,
		Name:     m.Name,
		FileName: m.FileName,
		MimeType: m.MimeType,
		Size:     m.Size,
		URL:      m.URL,
		IsPublic: m.IsPublic,
		Lat:      m.Lat,
		Lng:      m.Lng,
	}
}

func (c *fileCollector) SyncField(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig, value any, hidden bool) ([]domain.Warning, error) {
	return nil, nil
}
