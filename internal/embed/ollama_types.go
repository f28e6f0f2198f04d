package embed

// Request and response shapes for the Ollama HTTP API.

// embedRequest is the body for POST /api/embed. Input accepts a string or a
// list of strings; we always send a list.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the body returned by POST /api/embed.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// tagsResponse is the body returned by GET /api/tags.
type tagsResponse struct {
	Models []tagModel `json:"models"`
}

type tagModel struct {
	Name string `json:"name"`
}
