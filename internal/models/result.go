package models

// Match is a single similarity search hit returned by a store.
type Match struct {
	ID         string                 `json:"id"`
	Content    string                 `json:"content"`
	SourceFile string                 `json:"source_file"`
	SourceType SourceType             `json:"source_type"`
	ChunkIndex int                    `json:"chunk_index"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Similarity float64                `json:"similarity"`
}

// RetrievedContext is a snippet handed to the context assembler.
type RetrievedContext struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// IngestResult reports the outcome of ingesting one upload.
type IngestResult struct {
	Success    bool       `json:"success"`
	Source     string     `json:"file"`
	Type       SourceType `json:"type"`
	Chunks     int        `json:"chunks"`
	Characters int        `json:"characters"`
}

// RetrieveResponse is returned by the retrieve endpoint.
type RetrieveResponse struct {
	Query   string             `json:"query"`
	Context []RetrievedContext `json:"context"`
	Prompt  string             `json:"prompt,omitempty"`
}

// SourceInfo summarizes the chunks stored for one source.
type SourceInfo struct {
	SourceFile string     `json:"source_file"`
	SourceType SourceType `json:"source_type"`
	Chunks     int64      `json:"chunks"`
}
