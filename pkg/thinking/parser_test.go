package thinking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser(t *testing.T) {
	t.Run("should split thinking from final content", func(t *testing.T) {
		state := Split("a<think>b</think>c")

		assert.Equal(t, "ac", state.FinalContent)
		assert.Equal(t, "b", state.Thinking())
		assert.Equal(t, []string{"b"}, state.ThinkingSegments)
		assert.False(t, state.InThinking)
	})

	t.Run("should handle content without markers", func(t *testing.T) {
		state := Split("Just a regular response")

		assert.False(t, state.HasThinking())
		assert.Equal(t, "Just a regular response", state.FinalContent)
	})

	t.Run("should handle multiple thinking blocks", func(t *testing.T) {
		state := Split("<think>First thought</think>Some text<think>Second thought</think>Final response")

		assert.Equal(t, "First thought\n\nSecond thought", state.Thinking())
		assert.Equal(t, "Some textFinal response", state.FinalContent)
	})

	t.Run("should accept thinking tags with variation and case", func(t *testing.T) {
		state := Split("<THINKING>Detailed analysis</Thinking>My answer")

		assert.Equal(t, "Detailed analysis", state.Thinking())
		assert.Equal(t, "My answer", state.FinalContent)
	})

	t.Run("should buffer a marker split across chunks", func(t *testing.T) {
		p := New()

		state := p.Parse("Hello <thi")
		assert.Equal(t, "Hello ", state.FinalContent)
		assert.False(t, state.InThinking)

		state = p.Parse("nk>reason")
		assert.True(t, state.InThinking)
		assert.Equal(t, "reason", state.Thinking())

		state = p.Parse("ing</th")
		assert.Equal(t, "reasoning", state.Thinking())

		state = p.Parse("ink> done")
		assert.False(t, state.InThinking)
		assert.Equal(t, "Hello  done", state.FinalContent)
	})

	t.Run("should release a held prefix that never becomes a marker", func(t *testing.T) {
		p := New()
		p.Parse("a <th")
		state := p.Parse("e end")
		assert.Equal(t, "a <the end", state.FinalContent)
	})

	t.Run("should close an unterminated span on complete", func(t *testing.T) {
		p := New()
		p.Parse("<think>still going</thi")

		state := p.Complete()
		assert.False(t, state.InThinking)
		assert.Equal(t, "still going</thi", state.Thinking())
		assert.Empty(t, state.FinalContent)
	})

	t.Run("should flush a dangling partial marker as content on complete", func(t *testing.T) {
		p := New()
		p.Parse("answer <")
		assert.Equal(t, "answer ", p.State().FinalContent)

		state := p.Complete()
		assert.Equal(t, "answer <", state.FinalContent)
	})

	t.Run("should use custom markers", func(t *testing.T) {
		state := Split("x[[plan]]y[[/plan]]z<think>w</think>", WithMarkers("[[plan]]", "[[/plan]]"))

		assert.Equal(t, "y", state.Thinking())
		assert.Equal(t, "xz<think>w</think>", state.FinalContent)
	})

	t.Run("should add alias markers", func(t *testing.T) {
		state := Split("<reflect>r</reflect>ok", WithAlias("<reflect>", "</reflect>"))

		assert.Equal(t, "r", state.Thinking())
		assert.Equal(t, "ok", state.FinalContent)
	})

	t.Run("should reset all state", func(t *testing.T) {
		p := New()
		p.Parse("<think>abc")
		p.Reset()

		state := p.Parse("fresh")
		assert.False(t, state.HasThinking())
		assert.Equal(t, "fresh", state.FinalContent)
	})
}

func TestParserSplitEquivalence(t *testing.T) {
	inputs := []string{
		"a<think>b</think>c",
		"<think></think>",
		"pre <THINK>mixed</Think> post <thinking>second</thinking>!",
		"<<think>><</think>>",
		"no markers at all < > </",
		"<think>unterminated <thi",
	}

	for _, input := range inputs {
		want := Split(input)

		for offset := 0; offset <= len(input); offset++ {
			p := New()
			p.Parse(input[:offset])
			p.Parse(input[offset:])
			got := p.Complete()

			require.Equal(t, want, got, "input %q split at %d", input, offset)
		}
	}
}

func TestParserKeepsEveryByte(t *testing.T) {
	input := "one <think>two</think> three <thinking>four"
	state := Split(input)

	total := len(state.FinalContent) + len(strings.Join(state.ThinkingSegments, ""))
	markers := len("<think>") + len("</think>") + len("<thinking>")
	assert.Equal(t, len(input)-markers, total)
}
