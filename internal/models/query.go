package models

// QueryResult represents a single ranked image.
type QueryResult struct {
	Rank  int     `json:"rank"`
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// QueryResponse is the response for a text query against the image index.
type QueryResponse struct {
	Query     string         `json:"query"`
	K         int            `json:"k"`
	Results   []*QueryResult `json:"results"`
	QueryTime int64          `json:"query_time_ms"`
}
