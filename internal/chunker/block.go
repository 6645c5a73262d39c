package chunker

import (
	"regexp"
	"strings"
)

// BlockKind is the structural class of a paragraph block.
type BlockKind string

// Block kinds recognised by Classify.
const (
	KindHeading BlockKind = "heading"
	KindCode    BlockKind = "code"
	KindList    BlockKind = "list"
	KindQuote   BlockKind = "quote"
	KindTable   BlockKind = "table"
	KindText    BlockKind = "text"
)

// Block is a run of markdown lines sharing one structural kind.
type Block struct {
	Kind BlockKind
	Text string
	// Fence is the opening fence run (``` or ~~~, possibly longer) for code blocks.
	Fence  string
	Tokens int
}

var (
	headingLine = regexp.MustCompile(`^#{1,6}\s`)
	listLine    = regexp.MustCompile(`^(\s*[-*+]\s+|\s*\d+\.\s+)`)
	tableLine   = regexp.MustCompile(`^\s*\|.+\|\s*$`)
)

// Classify splits markdown into ordered blocks. A fenced code block keeps
// every line, blank ones included, until the matching fence closes it.
func Classify(text string, est Estimator) []Block {
	if est == nil {
		est = RuneEstimator{}
	}
	b := &blockBuilder{est: est}
	for _, raw := range strings.Split(text, "\n") {
		b.feed(strings.TrimSuffix(raw, "\r"))
	}
	b.flush()
	if len(b.blocks) == 0 {
		trimmed := strings.TrimSpace(text)
		return []Block{{Kind: KindText, Text: trimmed, Tokens: est.Estimate(trimmed)}}
	}
	return b.blocks
}

type blockBuilder struct {
	est    Estimator
	blocks []Block
	lines  []string
	kind   BlockKind
	fence  string
	inCode bool
}

func (b *blockBuilder) feed(line string) {
	stripped := strings.TrimSpace(line)
	marker := fenceMarker(stripped)

	if b.inCode {
		b.lines = append(b.lines, line)
		if closesFence(stripped, b.fence) {
			b.inCode = false
			b.flush()
		}
		return
	}

	switch {
	case marker != "":
		b.flush()
		b.inCode = true
		b.kind = KindCode
		b.fence = marker
		b.lines = append(b.lines, line)
	case stripped == "":
		b.flush()
	case headingLine.MatchString(stripped):
		b.flush()
		b.emit(Block{Kind: KindHeading, Text: stripped})
	default:
		kind := lineKind(stripped)
		if len(b.lines) > 0 && kind != b.kind {
			b.flush()
		}
		if len(b.lines) == 0 {
			b.kind = kind
		}
		b.lines = append(b.lines, line)
	}
}

func (b *blockBuilder) flush() {
	if len(b.lines) == 0 {
		return
	}
	text := strings.Join(b.lines, "\n")
	if b.kind != KindCode {
		text = strings.Trim(text, "\n")
	}
	b.emit(Block{Kind: b.kind, Text: text, Fence: b.fence})
	b.lines = nil
	b.kind = KindText
	b.fence = ""
}

func (b *blockBuilder) emit(block Block) {
	block.Tokens = b.est.Estimate(block.Text)
	b.blocks = append(b.blocks, block)
}

func lineKind(stripped string) BlockKind {
	switch {
	case listLine.MatchString(stripped):
		return KindList
	case strings.HasPrefix(stripped, ">"):
		return KindQuote
	case tableLine.MatchString(stripped):
		return KindTable
	default:
		return KindText
	}
}

// fenceMarker returns the run of three or more backticks or tildes that
// opens stripped, or "" when the line is not a fence.
func fenceMarker(stripped string) string {
	for _, c := range []byte{'`', '~'} {
		n := 0
		for n < len(stripped) && stripped[n] == c {
			n++
		}
		if n >= 3 {
			return stripped[:n]
		}
	}
	return ""
}

// closesFence reports whether stripped is a bare fence of the opening
// character at least as long as open. Info strings never close a block.
func closesFence(stripped, open string) bool {
	if open == "" {
		return false
	}
	run := fenceMarker(stripped)
	return run != "" && run[0] == open[0] && len(run) >= len(open) && len(run) == len(stripped)
}
