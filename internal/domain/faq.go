package domain

// FAQRecord is one entry in the FAQ corpus.
type FAQRecord struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Keywords []string `json:"keywords,omitempty"`
}

// FAQMatch is a scored FAQ search result.
type FAQMatch struct {
	ID     string    `json:"id"`
	Record FAQRecord `json:"record"`
	Score  float64   `json:"score"`
}
