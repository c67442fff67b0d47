package search

// Searcher is the search API used by the CLI and the TUI.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
}

// DebugStatser provides lightweight stats for visibility/debugging.
type DebugStatser interface {
	DocCount() (int, error)
}

// Result is one matching entry.
type Result struct {
	ID      string
	Title   string
	Author  string
	Snippet string
	Score   float64
}
