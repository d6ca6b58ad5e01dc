package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultVersion  ResultType = "version"
	ResultDocument ResultType = "document"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	TemplateID string     `json:"templateId"`
	Status     string     `json:"status,omitempty"`
	Language   string     `json:"language,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterType     ResultType // empty = all types
	FilterTemplate string
	FilterStatus   string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexVersion(v VersionRecord) error
	IndexDocument(d DocumentRecord) error
	DeleteVersion(id string) error
	DeleteDocument(id string) error
}

// VersionRecord is the data we index for a template version.
type VersionRecord struct {
	ID         string `json:"id"`
	TemplateID string `json:"templateId"`
	Name       string `json:"name"`
	Language   string `json:"language"`
	Status     string `json:"status"`
	Text       string `json:"text"`
}

// DocumentRecord is the data we index for a generated document.
type DocumentRecord struct {
	ID         string `json:"id"`
	TemplateID string `json:"templateId"`
	Title      string `json:"title"`
	Status     string `json:"status"`
}
