package websum

// Document is the normalized representation of one acquired page.
type Document struct {
	RequestedURL    string
	FinalURL        string
	Title           string
	PlainText       string
	Markdown        string
	RawMarkup       string
	ExtractedMarkup string
	// Screenshot holds a PNG capture when the acquisition path produced one.
	Screenshot []byte
	// Source names the acquisition path: "github", "headless", "remote:<name>".
	Source string
}

// SummaryHints carries page context alongside a summarize call.
type SummaryHints struct {
	Title string
	URL   string
	// Index and Total are 1-based segment positions; both are zero for a single call.
	Index int
	Total int
}

// NoteMetadata describes a note being published.
type NoteMetadata struct {
	JobID           string
	ConversationKey string
	Source          string
	// URL is the final page URL after redirects.
	URL        string
	Title      string
	AITitle    string
	Screenshot []byte
}
