package entities

// SessionConfig holds the tunables of one agent run.
type SessionConfig struct {
	MaxSteps              int     `yaml:"max_steps" envconfig:"MAX_STEPS"`
	RelevanceRatio        float64 `yaml:"relevance_ratio" envconfig:"RELEVANCE_RATIO"`
	FallbackFileCap       int     `yaml:"fallback_file_cap" envconfig:"FALLBACK_FILE_CAP"`
	FallbackPerKeywordCap int     `yaml:"fallback_per_keyword_cap" envconfig:"FALLBACK_PER_KEYWORD_CAP"`
	// MinKeywordLength is the shortest token kept as a keyword.
	MinKeywordLength    int     `yaml:"min_keyword_length" envconfig:"MIN_KEYWORD_LENGTH"`
	TopK                int     `yaml:"top_k" envconfig:"TOP_K"`
	MaxTopK             int     `yaml:"max_top_k" envconfig:"MAX_TOP_K"`
	HistoryTurns        int     `yaml:"history_turns" envconfig:"HISTORY_TURNS"`
	MaxFactsPerChunk    int     `yaml:"max_facts_per_chunk" envconfig:"MAX_FACTS_PER_CHUNK"`
	ChunkTextLimit      int     `yaml:"chunk_text_limit" envconfig:"CHUNK_TEXT_LIMIT"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" envconfig:"CONFIDENCE_THRESHOLD"`
}

// DefaultSessionConfig returns the tuned defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxSteps:              5,
		RelevanceRatio:        0.85,
		FallbackFileCap:       3,
		FallbackPerKeywordCap: 3,
		MinKeywordLength:      3,
		TopK:                  5,
		MaxTopK:               10,
		HistoryTurns:          4,
		MaxFactsPerChunk:      10,
		ChunkTextLimit:        1200,
		ConfidenceThreshold:   0.2,
	}
}

// WithDefaults fills zero fields from DefaultSessionConfig.
func (c SessionConfig) WithDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.RelevanceRatio <= 0 || c.RelevanceRatio > 1 {
		c.RelevanceRatio = d.RelevanceRatio
	}
	if c.FallbackFileCap <= 0 {
		c.FallbackFileCap = d.FallbackFileCap
	}
	if c.FallbackPerKeywordCap <= 0 {
		c.FallbackPerKeywordCap = d.FallbackPerKeywordCap
	}
	if c.MinKeywordLength <= 0 {
		c.MinKeywordLength = d.MinKeywordLength
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.MaxTopK < c.TopK {
		c.MaxTopK = max(d.MaxTopK, c.TopK)
	}
	if c.HistoryTurns < 0 {
		c.HistoryTurns = d.HistoryTurns
	}
	if c.MaxFactsPerChunk <= 0 {
		c.MaxFactsPerChunk = d.MaxFactsPerChunk
	}
	if c.ChunkTextLimit <= 0 {
		c.ChunkTextLimit = d.ChunkTextLimit
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	return c
}
