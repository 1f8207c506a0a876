package domain

// EmbeddedRecord is the exchange shape of one generic relation row.
type EmbeddedRecord map[string]any

func (r EmbeddedRecord) UUID() string {
	s, _ := r["uuid"].(string)
	return s
}

func (r EmbeddedRecord) Collection() string {
	s, _ := r["collection"].(string)
	return s
}

// Entry is a sub-row of a two-level record. Identity is (Type, Subtype, Name).
type Entry struct {
	Type    string  `json:"type"`
	Subtype *string `json:"subtype,omitempty"`
	Name    *string `json:"name,omitempty"`
	Amount  int     `json:"amount"`
}

// SameIdentity reports whether two entries share an identity triple, treating nil and "" as absent.
func (e Entry) SameIdentity(other Entry) bool {
	return e.Type == other.Type &&
		optionalEqual(e.Subtype, other.Subtype) &&
		optionalEqual(e.Name, other.Name)
}

func optionalEqual(a, b *string) bool {
	aAbsent := a == nil || *a == ""
	bAbsent := b == nil || *b == ""
	if aAbsent || bAbsent {
		return aAbsent == bAbsent
	}
	return *a == *b
}

type DemographicRecord struct {
	UUID       string  `json:"uuid,omitempty"`
	Collection string  `json:"collection"`
	Entries    []Entry `json:"entries"`
}

type FundingTypeRecord struct {
	UUID             string   `json:"uuid,omitempty"`
	OrganisationUUID string   `json:"organisationId,omitempty"`
	Source           *string  `json:"source"`
	Amount           *float64 `json:"amount"`
	Year             *int     `json:"year"`
	Type             *string  `json:"type"`
}

type FinancialIndicatorRecord struct {
	UUID        string   `json:"uuid,omitempty"`
	Collection  string   `json:"collection"`
	Amount      *float64 `json:"amount"`
	Year        *int     `json:"year"`
	Description *string  `json:"description"`
	Currency    *string  `json:"currency,omitempty"`
	StartMonth  *int     `json:"startMonth,omitempty"`
}

type DisturbanceEntryRecord struct {
	UUID      string  `json:"uuid,omitempty"`
	Name      string  `json:"name"`
	InputType string  `json:"inputType"`
	Title     *string `json:"title"`
	Subtitle  *string `json:"subtitle"`
	Value     *string `json:"value"`
}

type MediaRecord struct {
	UUID     string   `json:"uuid"`
	Name     string   `json:"name"`
	FileName string   `json:"fileName"`
	MimeType string   `json:"mimeType"`
	Size     int64    `json:"size"`
	URL      string   `json:"url"`
	IsPublic bool     `json:"isPublic"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
}
