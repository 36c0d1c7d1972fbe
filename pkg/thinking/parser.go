package thinking

import (
	"slices"
	"strings"
)

// Marker pair delimiting a thinking span
type Marker struct {
	Open  string
	Close string
}

// DefaultMarkers are recognised when no markers are configured.
// Matching is ASCII case-insensitive.
var DefaultMarkers = []Marker{
	{Open: "<think>", Close: "</think>"},
	{Open: "<thinking>", Close: "</thinking>"},
}

// State is a snapshot of the parser output
type State struct {
	ThinkingSegments []string
	FinalContent     string
	InThinking       bool
}

// Thinking joins every thinking span into one string
func (s State) Thinking() string {
	return strings.Join(s.ThinkingSegments, "\n\n")
}

// HasThinking reports whether at least one span was opened
func (s State) HasThinking() bool {
	return len(s.ThinkingSegments) > 0
}

// Option configures a Parser
type Option func(*Parser)

// WithMarkers replaces the recognised markers with a single pair
func WithMarkers(open, close string) Option {
	return func(p *Parser) {
		if open == "" || close == "" {
			return
		}
		p.markers = []Marker{{Open: open, Close: close}}
	}
}

// WithAlias adds another recognised marker pair
func WithAlias(open, close string) Option {
	return func(p *Parser) {
		if open == "" || close == "" {
			return
		}
		p.markers = append(p.markers, Marker{Open: open, Close: close})
	}
}

// Parser incrementally splits streamed text into thinking and final content.
// A marker cut across two chunks is held back until the next chunk decides it.
type Parser struct {
	markers    []Marker
	pending    string
	inThinking bool
	segments   []string
	final      strings.Builder
}

// New creates a parser
func New(opts ...Option) *Parser {
	p := &Parser{markers: slices.Clone(DefaultMarkers)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse consumes the next chunk and returns the updated state
func (p *Parser) Parse(chunk string) State {
	p.pending += chunk

	for {
		idx, size := p.nextMarker()
		if idx < 0 {
			break
		}
		p.emit(p.pending[:idx])
		p.pending = p.pending[idx+size:]
		p.toggle()
	}

	hold := p.partialSuffix()
	p.emit(p.pending[:len(p.pending)-hold])
	p.pending = p.pending[len(p.pending)-hold:]

	return p.State()
}

// Complete flushes any held-back text and closes an unterminated span
func (p *Parser) Complete() State {
	p.emit(p.pending)
	p.pending = ""
	p.inThinking = false
	return p.State()
}

// State returns the current output without consuming input
func (p *Parser) State() State {
	return State{
		ThinkingSegments: slices.Clone(p.segments),
		FinalContent:     p.final.String(),
		InThinking:       p.inThinking,
	}
}

// Reset discards all input and output
func (p *Parser) Reset() {
	p.pending = ""
	p.inThinking = false
	p.segments = nil
	p.final.Reset()
}

// Split parses a complete text in one go
func Split(text string, opts ...Option) State {
	p := New(opts...)
	p.Parse(text)
	return p.Complete()
}

func (p *Parser) toggle() {
	if p.inThinking {
		p.inThinking = false
		return
	}
	p.inThinking = true
	p.segments = append(p.segments, "")
}

func (p *Parser) emit(text string) {
	if text == "" {
		return
	}
	if p.inThinking {
		p.segments[len(p.segments)-1] += text
		return
	}
	p.final.WriteString(text)
}

// candidates returns the markers that can change the current mode
func (p *Parser) candidates() []string {
	out := make([]string, 0, len(p.markers))
	for _, m := range p.markers {
		if p.inThinking {
			out = append(out, m.Close)
		} else {
			out = append(out, m.Open)
		}
	}
	return out
}

// nextMarker finds the earliest complete marker in the pending text.
// The longest marker wins a tie.
func (p *Parser) nextMarker() (int, int) {
	best, size := -1, 0
	for _, marker := range p.candidates() {
		i := indexFold(p.pending, marker)
		if i < 0 {
			continue
		}
		if best < 0 || i < best || (i == best && len(marker) > size) {
			best, size = i, len(marker)
		}
	}
	return best, size
}

// partialSuffix returns the length of the longest pending suffix that could
// still grow into a marker
func (p *Parser) partialSuffix() int {
	hold := 0
	for _, marker := range p.candidates() {
		limit := min(len(marker)-1, len(p.pending))
		for n := limit; n > hold; n-- {
			if equalFold(p.pending[len(p.pending)-n:], marker[:n]) {
				hold = n
				break
			}
		}
	}
	return hold
}

func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if equalFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}

// equalFold compares byte-wise with ASCII case folding so offsets stay byte exact
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lower(a[i]) != lower(b[i]) {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
