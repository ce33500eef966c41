package documents

import (
	"iter"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/perspectives-ai/rag/internal/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMinChunkSize = 100

	pageSeparator = "\n\n"
)

var (
	markdownHeading = regexp.MustCompile(`^#{1,6}\s+\S`)
	numberedSection = regexp.MustCompile(`^(?i)(chapter|section)\s+\d+\b`)
	numberedTitle   = regexp.MustCompile(`^\d+\.\s+[A-Z][A-Za-z\s]{10,50}$`)
	capsHeading     = regexp.MustCompile(`^[A-Z][A-Z\s]{15,80}$`)
	reportHeading   = regexp.MustCompile(`^(?i)(executive summary|introduction|methodology|results|conclusions?|appendix)\b[^.]{0,40}$`)
)

// Chunker splits document text into overlapping, page-bounded chunks.
// Sizes are in bytes.
type Chunker struct {
	ChunkSize int
	Overlap   int
	MinSize   int
}

// NewChunker returns a chunker with out-of-range settings replaced by defaults
func NewChunker(size, overlap, minSize int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	if minSize < 0 {
		minSize = 0
	}
	if minSize > size {
		minSize = size
	}
	return &Chunker{ChunkSize: size, Overlap: overlap, MinSize: minSize}
}

// JoinPages concatenates pages into one text and returns the byte offset
// at which each page starts.
func JoinPages(pages []string) (string, []int) {
	var b strings.Builder
	bounds := make([]int, len(pages))
	for i, p := range pages {
		if i > 0 {
			b.WriteString(pageSeparator)
		}
		bounds[i] = b.Len()
		b.WriteString(p)
	}
	return b.String(), bounds
}

// Chunk collects Chunks into a slice
func (c *Chunker) Chunk(text string, boundaries []int) []domain.Chunk {
	return slices.Collect(c.Chunks(text, boundaries))
}

// Chunks yields the chunks of text in order. boundaries holds the start
// offset of each page, as returned by JoinPages; nil means a single page.
// Chunk IDs are left for the caller to assign.
func (c *Chunker) Chunks(text string, boundaries []int) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		seq := 0
		for _, pg := range pageSpans(text, boundaries) {
			if strings.TrimSpace(text[pg.start:pg.end]) == "" {
				continue
			}

			prev := ""
			for _, p := range c.pack(text, c.units(text, pg.start, pg.end)) {
				body := text[p.start:p.end]
				prefix := c.overlap(prev)
				prev = body

				chunk := domain.Chunk{
					Text:     prefix + body,
					Sequence: seq,
					Page:     pg.number,
					Section: domain.SectionMeta{
						Heading:      p.heading,
						Method:       p.method,
						Offset:       p.start,
						OverlapChars: len(prefix),
					},
				}
				if !yield(chunk) {
					return
				}
				seq++
			}
		}
	}
}

type span struct {
	start, end int
	number     int
}

// pageSpans turns page start offsets into [start, end) spans. Offsets are
// clamped to the text and forced to be non-decreasing.
func pageSpans(text string, boundaries []int) []span {
	if len(boundaries) == 0 {
		return []span{{start: 0, end: len(text), number: 1}}
	}

	starts := make([]int, len(boundaries))
	prev := 0
	for i, b := range boundaries {
		b = max(prev, min(b, len(text)))
		if i == 0 {
			b = 0
		}
		starts[i] = b
		prev = b
	}

	spans := make([]span, len(starts))
	for i, s := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		spans[i] = span{start: s, end: end, number: i + 1}
	}
	return spans
}

// unit is a paragraph or heading line, including its trailing blank lines
type unit struct {
	start, end int
	heading    string
	isHeading  bool
	hasText    bool
}

// units partitions text[start:end] into structural units
func (c *Chunker) units(text string, start, end int) []unit {
	var units []unit
	prevBlank := false
	for pos := start; pos < end; {
		lineEnd := end
		if nl := strings.IndexByte(text[pos:end], '\n'); nl >= 0 {
			lineEnd = pos + nl + 1
		}
		line := text[pos:lineEnd]
		blank := strings.TrimSpace(line) == ""

		if len(units) == 0 {
			units = append(units, unit{start: pos})
		}
		last := &units[len(units)-1]
		if !blank {
			h, isHead := headingText(line)
			if last.hasText && (isHead || prevBlank || last.isHeading) {
				units = append(units, unit{start: pos})
				last = &units[len(units)-1]
			}
			if isHead && !last.hasText {
				last.isHeading = true
				last.heading = h
			}
			last.hasText = true
		}
		last.end = lineEnd
		prevBlank = blank
		pos = lineEnd
	}
	return units
}

type piece struct {
	start, end int
	heading    string
	method     string
}

// pack groups units greedily up to ChunkSize and window-splits oversized units
func (c *Chunker) pack(text string, units []unit) []piece {
	var out []piece
	var cur *piece
	heading := ""
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}

	for _, u := range units {
		if u.isHeading {
			heading = u.heading
			if cur != nil && cur.end-cur.start >= c.MinSize {
				flush()
			}
		}

		size := u.end - u.start
		if cur != nil && cur.end-cur.start+size <= c.ChunkSize {
			cur.end = u.end
			if u.isHeading && cur.heading == "" {
				cur.heading = heading
			}
			continue
		}
		flush()

		if size <= c.ChunkSize {
			cur = &piece{start: u.start, end: u.end, heading: heading, method: domain.MethodStructural}
			continue
		}
		for _, w := range c.windows(text, u.start, u.end) {
			out = append(out, piece{start: w[0], end: w[1], heading: heading, method: domain.MethodWindow})
		}
	}
	flush()
	return out
}

// windows splits text[start:end] into spans of at most ChunkSize bytes
func (c *Chunker) windows(text string, start, end int) [][2]int {
	var out [][2]int
	for end-start > c.ChunkSize {
		cut := c.breakPoint(text, start, start+c.ChunkSize)
		out = append(out, [2]int{start, cut})
		start = cut
	}
	return append(out, [2]int{start, end})
}

// breakPoint picks where a window starting at start and ending at limit
// should end. It prefers a sentence end, then whitespace, in the last fifth
// of the window, and never splits a rune.
func (c *Chunker) breakPoint(text string, start, limit int) int {
	for limit > start && !utf8.RuneStart(text[limit]) {
		limit--
	}
	if limit == start {
		_, n := utf8.DecodeRuneInString(text[start:])
		return start + n
	}

	from := start + (limit-start)*4/5
	window := text[from:limit]
	for i := len(window) - 2; i >= 0; i-- {
		if strings.IndexByte(".!?", window[i]) >= 0 && isSpace(window[i+1]) {
			return from + i + 2
		}
	}
	if i := strings.LastIndexAny(window, " \t\r\n"); i >= 0 {
		return from + i + 1
	}
	return limit
}

// overlap returns the tail of prev to repeat at the start of the next
// chunk: at most Overlap bytes, starting at a word.
func (c *Chunker) overlap(prev string) string {
	if c.Overlap <= 0 || prev == "" {
		return ""
	}

	tail := prev
	if len(prev) > c.Overlap {
		i := len(prev) - c.Overlap
		for i < len(prev) && !utf8.RuneStart(prev[i]) {
			i++
		}
		tail = prev[i:]
		if !isSpace(prev[i-1]) {
			j := strings.IndexAny(tail, " \t\r\n")
			if j < 0 {
				return ""
			}
			tail = tail[j:]
		}
	}

	tail = strings.TrimLeft(tail, " \t\r\n")
	if strings.TrimSpace(tail) == "" {
		return ""
	}
	return tail
}

// headingText reports whether line looks like a section heading
func headingText(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if s == "" || len(s) > 100 {
		return "", false
	}
	switch {
	case markdownHeading.MatchString(s):
		return strings.TrimSpace(strings.TrimLeft(s, "#")), true
	case numberedSection.MatchString(s),
		numberedTitle.MatchString(s),
		capsHeading.MatchString(s),
		reportHeading.MatchString(s):
		return s, true
	}
	return "", false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
