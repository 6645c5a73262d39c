// Package chunker splits markdown into token-bounded chunks along structural
// boundaries so each chunk can be summarized independently.
package chunker

import (
	"sort"
	"strings"
	"unicode"
)

const blockSeparator = "\n\n"

// Chunk is a contiguous run of blocks. Oversized is set when the chunk still
// exceeds the budget because it holds a single unit that cannot shrink.
type Chunk struct {
	Text      string
	Tokens    int
	Oversized bool
}

// Splitter packs classified blocks into chunks using an Estimator.
type Splitter struct {
	est Estimator
}

// New returns a Splitter; a nil estimator selects RuneEstimator.
func New(est Estimator) *Splitter {
	if est == nil {
		est = RuneEstimator{}
	}
	return &Splitter{est: est}
}

var defaultSplitter = New(nil)

// Split splits text with the default rune estimator.
func Split(text string, maxTokens int) []Chunk {
	return defaultSplitter.Split(text, maxTokens)
}

// Estimate exposes the splitter's estimator.
func (s *Splitter) Estimate(text string) int {
	return s.est.Estimate(text)
}

// Split returns at least one chunk. Empty input yields a single empty chunk;
// a non-positive budget disables splitting.
func (s *Splitter) Split(text string, maxTokens int) []Chunk {
	if maxTokens <= 0 {
		trimmed := strings.TrimSpace(text)
		return []Chunk{{Text: trimmed, Tokens: s.est.Estimate(trimmed)}}
	}
	p := packer{s: s, max: maxTokens, sepTokens: s.est.Estimate(blockSeparator)}
	for _, block := range Classify(text, s.est) {
		p.add(block)
	}
	p.flush()
	if len(p.chunks) == 0 {
		return []Chunk{{}}
	}
	return p.chunks
}

type packer struct {
	s         *Splitter
	max       int
	sepTokens int
	chunks    []Chunk
	current   []string
	tokens    int
}

func (p *packer) add(block Block) {
	content := strings.Trim(block.Text, "\n")
	if block.Kind == KindCode {
		content = strings.TrimRight(block.Text, " \t\n")
	}
	if strings.TrimSpace(content) == "" {
		return
	}
	n := block.Tokens
	if content != block.Text {
		n = p.s.est.Estimate(content)
	}

	if n > p.max {
		p.flush()
		if block.Kind == KindCode {
			p.chunks = append(p.chunks, p.s.splitCode(content, block.Fence, p.max)...)
		} else {
			p.chunks = append(p.chunks, p.s.splitLines(content, p.max, block.Kind != KindText)...)
		}
		return
	}

	if block.Kind == KindHeading {
		p.flush()
	}
	extra := 0
	if len(p.current) > 0 {
		extra = p.sepTokens
		if p.tokens+extra+n > p.max {
			p.flush()
			extra = 0
		}
	}
	p.current = append(p.current, content)
	p.tokens += extra + n
}

func (p *packer) flush() {
	if len(p.current) == 0 {
		return
	}
	p.chunks = append(p.chunks, p.s.chunk(strings.Join(p.current, blockSeparator), p.max))
	p.current = nil
	p.tokens = 0
}

func (s *Splitter) chunk(text string, max int) Chunk {
	n := s.est.Estimate(text)
	return Chunk{Text: text, Tokens: n, Oversized: n > max}
}

// splitLines groups lines greedily; a line that alone exceeds the budget is
// cut at word boundaries.
func (s *Splitter) splitLines(text string, max int, preserveIndent bool) []Chunk {
	nl := s.est.Estimate("\n")
	var (
		out    []Chunk
		group  []string
		tokens int
	)
	emit := func() {
		if len(group) == 0 {
			return
		}
		joined := strings.Join(group, "\n")
		if preserveIndent {
			joined = strings.TrimRight(joined, "\n")
		} else {
			joined = strings.Trim(joined, "\n")
		}
		if strings.TrimSpace(joined) != "" {
			out = append(out, s.chunk(joined, max))
		}
		group = nil
		tokens = 0
	}

	for _, line := range strings.Split(text, "\n") {
		n := s.est.Estimate(line)
		if n > max {
			emit()
			for _, piece := range s.splitLine(line, max) {
				out = append(out, s.chunk(piece, max))
			}
			continue
		}
		if len(group) > 0 && tokens+nl+n > max {
			emit()
		}
		if len(group) > 0 {
			tokens += nl
		}
		group = append(group, line)
		tokens += n
	}
	emit()
	return out
}

// splitCode re-wraps body lines of an oversized fenced block so every piece
// opens and closes its own fence.
func (s *Splitter) splitCode(text, fence string, max int) []Chunk {
	if fence == "" {
		fence = "```"
	}
	lines := strings.Split(text, "\n")
	open, closing := fence, fence
	body := lines
	if fenceMarker(strings.TrimSpace(lines[0])) != "" {
		open = lines[0]
		body = body[1:]
	}
	if len(body) > 0 && closesFence(strings.TrimSpace(body[len(body)-1]), fence) {
		closing = strings.TrimSpace(body[len(body)-1])
		body = body[:len(body)-1]
	}

	nl := s.est.Estimate("\n")
	overhead := s.est.Estimate(open) + s.est.Estimate(closing) + 2*nl
	wrap := func(inner []string) Chunk {
		parts := append(append([]string{open}, inner...), closing)
		return s.chunk(strings.Join(parts, "\n"), max)
	}
	if len(body) == 0 {
		return []Chunk{s.chunk(open+"\n"+closing, max)}
	}

	var (
		out     []Chunk
		current []string
		tokens  int
	)
	for _, line := range body {
		n := s.est.Estimate(line)
		if overhead+n > max {
			if len(current) > 0 {
				out = append(out, wrap(current))
				current, tokens = nil, 0
			}
			allowed := max - overhead
			if allowed < 1 {
				allowed = 1
			}
			for _, piece := range s.splitLine(line, allowed) {
				out = append(out, wrap([]string{piece}))
			}
			continue
		}
		sep := 0
		if len(current) > 0 {
			sep = nl
		}
		if len(current) > 0 && overhead+tokens+sep+n > max {
			out = append(out, wrap(current))
			current, tokens, sep = nil, 0, 0
		}
		current = append(current, line)
		tokens += sep + n
	}
	if len(current) > 0 {
		out = append(out, wrap(current))
	}
	return out
}

// splitLine cuts one line into the longest prefixes that fit, preferring to
// cut at whitespace. A single rune that does not fit is emitted on its own.
func (s *Splitter) splitLine(line string, max int) []string {
	rest := []rune(line)
	var out []string
	for len(rest) > 0 {
		n := s.fitPrefix(rest, max)
		if n == 0 {
			n = 1
		}
		if n < len(rest) {
			if cut := lastSpace(rest[:n]); cut > 0 {
				n = cut
			}
		}
		piece := strings.TrimRightFunc(string(rest[:n]), unicode.IsSpace)
		rest = trimLeftSpace(rest[n:])
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

// fitPrefix returns the largest n such that rs[:n] fits in max tokens.
func (s *Splitter) fitPrefix(rs []rune, max int) int {
	return sort.Search(len(rs), func(i int) bool {
		return s.est.Estimate(string(rs[:i+1])) > max
	})
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i > 0; i-- {
		if unicode.IsSpace(rs[i]) {
			return i
		}
	}
	return 0
}

func trimLeftSpace(rs []rune) []rune {
	i := 0
	for i < len(rs) && unicode.IsSpace(rs[i]) {
		i++
	}
	return rs[i:]
}
