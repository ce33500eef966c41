package documents

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ParsedDocument holds the extracted text of a document, one string per page
type ParsedDocument struct {
	Pages       []string
	ContentType string
}

// Parser interface for document parsing
type Parser interface {
	Parse(filePath string) (*ParsedDocument, error)
}

// FitzParser extracts page text from PDF and EPUB files
type FitzParser struct {
	contentType string
}

// NewPDFParser creates a new PDF parser
func NewPDFParser() *FitzParser {
	return &FitzParser{contentType: "application/pdf"}
}

// NewEPUBParser creates a new EPUB parser
func NewEPUBParser() *FitzParser {
	return &FitzParser{contentType: "application/epub+zip"}
}

// Parse extracts the text of every page. Empty pages are kept so page
// numbers stay aligned with the source.
func (p *FitzParser) Parse(filePath string) (*ParsedDocument, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	pages := make([]string, doc.NumPage())
	for i := range pages {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", i+1, err)
		}
		pages[i] = cleanText(text)
	}

	return &ParsedDocument{Pages: pages, ContentType: p.contentType}, nil
}

// TextParser reads plain text and markdown. A form feed separates pages.
type TextParser struct {
	contentType string
}

// Parse reads the file and splits it into pages
func (p *TextParser) Parse(filePath string) (*ParsedDocument, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	pages := strings.Split(string(data), "\f")
	for i, page := range pages {
		pages[i] = cleanText(page)
	}
	return &ParsedDocument{Pages: pages, ContentType: p.contentType}, nil
}

// ParserFor returns the parser for a file's extension, or nil when the
// type is unsupported
func ParserFor(filePath string) Parser {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return NewPDFParser()
	case ".epub":
		return NewEPUBParser()
	case ".txt":
		return &TextParser{contentType: "text/plain"}
	case ".md", ".markdown":
		return &TextParser{contentType: "text/markdown"}
	}
	return nil
}

// Supported reports whether a file can be ingested
func Supported(filePath string) bool {
	return ParserFor(filePath) != nil
}

var textFixer = strings.NewReplacer(
	"\r\n", "\n",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
)

var trailingSpace = regexp.MustCompile(`[ \t]+\n`)

// cleanText normalizes ligatures, quotes and line endings. Paragraph breaks
// are kept for the chunker.
func cleanText(text string) string {
	text = textFixer.Replace(text)
	text = trailingSpace.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

var leadingNumber = regexp.MustCompile(`^\d+\s`)

// ExtractTitle looks for an all-caps title line near the start of the
// document and falls back to the humanized file name
func ExtractTitle(pages []string, filename string) string {
	titler := cases.Title(language.English)
	for _, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		lines := strings.Split(page, "\n")
		for _, line := range lines[:min(len(lines), 10)] {
			line = strings.TrimSpace(line)
			if len(line) > 20 && len(line) < 100 &&
				line == strings.ToUpper(line) && line != strings.ToLower(line) &&
				!leadingNumber.MatchString(line) {
				return titler.String(line)
			}
		}
		break
	}

	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return titler.String(strings.Join(strings.Fields(name), " "))
}
