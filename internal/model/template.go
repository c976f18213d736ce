package model

type TemplateCategory string

const (
	CategoryTransactional TemplateCategory = "transactional"
	CategoryMarketing     TemplateCategory = "marketing"
	CategoryAlert         TemplateCategory = "alert"
)

// Template is a reusable message blueprint. Templates are maintained by an
// external admin surface; the dispatch core only reads them.
type Template struct {
	ID       string            `json:"id"`
	Category TemplateCategory  `json:"category"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
