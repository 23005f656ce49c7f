package doctree

// Outline is the heading tree of rendered Markdown, used for chunking.
type Outline struct {
	Title    string
	Sections []*Section
}

// Section is a recursive heading section.
type Section struct {
	Heading  string     // empty for text before the first heading
	Text     string     // Markdown body of this section, excluding subsections
	Unit     int        // 1-based slide/sheet number when known, 0 otherwise
	Children []*Section
}

// Chunk is a sized Markdown segment with its heading path.
type Chunk struct {
	Text       string   `json:"text"`
	Index      int      `json:"index"`
	Breadcrumb []string `json:"breadcrumb,omitempty"`
	UnitStart  int      `json:"unit_start,omitempty"`
	UnitEnd    int      `json:"unit_end,omitempty"`
}
