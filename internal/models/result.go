package models

// SearchResult is one retrieved chunk.
type SearchResult struct {
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Distance   float32 `json:"distance"`
}

// SearchResponse holds results ordered by ascending distance.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// GenerateResponse is a generated answer and the provider that produced it.
type GenerateResponse struct {
	Response string `json:"response"`
	Source   string `json:"source"`
}
