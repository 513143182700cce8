package core

// Settings is the read-only configuration consumed by the fallback completion
// path. Centralized loading lives in the config package; components only see
// this value.
type Settings struct {
	APIBase        string `json:"api_base"`
	Model          string `json:"model"`
	MaxTokens      int    `json:"max_tokens"`
	SupportsVision bool   `json:"supports_vision"`
}

// Entry is one {role, content} pair in the rolling conversation history.
type Entry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
