package out

import "context"

// ParsedPaper is the structured result of full-text PDF extraction.
type ParsedPaper struct {
	Abstract        string
	Sections        []PaperSection
	Institutions    []string
	ReferencesCount int
}

// PaperSection is one body division with its heading.
type PaperSection struct {
	Heading string
	Text    string
}

// PDFParser extracts structured text from a PDF document.
type PDFParser interface {
	Parse(ctx context.Context, pdf []byte) (ParsedPaper, error)
}
