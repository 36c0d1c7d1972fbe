package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/event"
	"github.com/killallgit/scout/pkg/logger"
	"github.com/killallgit/scout/pkg/research"
	"github.com/killallgit/scout/pkg/streaming"
	"github.com/killallgit/scout/pkg/thinking"
)

// Options controls what the renderer shows and how
type Options struct {
	Width        int
	Color        bool
	ShowThinking bool
	// Markers delimit thinking spans inside content; defaults apply when empty
	Markers []thinking.Marker
}

// Renderer turns messages and request state into terminal text
type Renderer struct {
	opts      Options
	formatter chroma.Formatter
	log       *logger.Logger

	agentStyle    lipgloss.Style
	thinkingStyle lipgloss.Style
	toolStyle     lipgloss.Style
	errorStyle    lipgloss.Style
	dimStyle      lipgloss.Style
	phaseStyle    lipgloss.Style
}

func New(opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 80
	}

	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	plain := lipgloss.NewStyle()
	r := &Renderer{
		opts:          opts,
		formatter:     formatter,
		log:           logger.WithComponent("render"),
		agentStyle:    plain,
		thinkingStyle: plain,
		toolStyle:     plain,
		errorStyle:    plain,
		dimStyle:      plain,
		phaseStyle:    plain,
	}
	if !opts.Color {
		return r
	}

	r.agentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6347"))
	r.thinkingStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#555555")).
		Padding(0, 1).
		Foreground(lipgloss.Color("#888888")).
		Italic(true).
		MaxWidth(opts.Width)
	r.toolStyle = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#FFD700")).
		Padding(0, 1).
		MaxWidth(opts.Width)
	r.errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
	r.dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	r.phaseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	return r
}

func (r *Renderer) parserOptions() []thinking.Option {
	var opts []thinking.Option
	for i, m := range r.opts.Markers {
		if i == 0 {
			opts = append(opts, thinking.WithMarkers(m.Open, m.Close))
		} else {
			opts = append(opts, thinking.WithAlias(m.Open, m.Close))
		}
	}
	return opts
}

// Message renders one message: header, thinking, content, tool calls,
// interrupt options and error note
func (r *Renderer) Message(msg chat.Message) string {
	var b strings.Builder

	header := string(msg.Role)
	if msg.Agent != chat.AgentNone {
		header = string(msg.Agent)
	}
	if msg.IsStreaming {
		header += " …"
	}
	b.WriteString(r.agentStyle.Render(header))
	b.WriteString("\n")

	parsed := thinking.Split(msg.Content, r.parserOptions()...)
	if r.opts.ShowThinking {
		var reasoning []string
		if msg.ReasoningContent != "" {
			reasoning = append(reasoning, msg.ReasoningContent)
		}
		if parsed.HasThinking() {
			reasoning = append(reasoning, parsed.Thinking())
		}
		if len(reasoning) > 0 {
			b.WriteString(r.thinkingStyle.Render(strings.Join(reasoning, "\n\n")))
			b.WriteString("\n")
		}
	}

	if content := strings.TrimSpace(parsed.FinalContent); content != "" {
		b.WriteString(content)
		b.WriteString("\n")
	}

	for _, tc := range msg.ToolCalls {
		b.WriteString(r.ToolCall(tc))
		b.WriteString("\n")
	}

	for i, opt := range msg.Options {
		fmt.Fprintf(&b, "  [%d] %s (%s)\n", i+1, opt.Text, opt.Value)
	}

	if msg.Error != "" && !strings.Contains(parsed.FinalContent, msg.Error) {
		b.WriteString(r.errorStyle.Render(msg.Error))
		b.WriteString("\n")
	}

	return b.String()
}

// ToolCall renders a call with its arguments and outcome
func (r *Renderer) ToolCall(tc chat.ToolCall) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", tc.Name, tc.Status)

	args := tc.RawArgs()
	if args == "" && tc.Args != nil {
		if data, err := json.Marshal(tc.Args); err == nil {
			args = string(data)
		}
	}
	if args != "" {
		b.WriteString("\n")
		b.WriteString(r.HighlightJSON([]byte(args)))
	}
	switch {
	case tc.Error != "":
		b.WriteString("\n")
		b.WriteString(r.errorStyle.Render(tc.Error))
	case len(tc.Result) > 0:
		b.WriteString("\n")
		b.WriteString(r.dimStyle.Render("result: "))
		b.WriteString(r.HighlightJSON(tc.Result))
	}

	return r.toolStyle.Render(b.String())
}

// HighlightJSON pretty prints valid JSON and highlights it when colour is
// on. Anything else is returned as is.
func (r *Renderer) HighlightJSON(data []byte) string {
	text := string(data)
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
			text = string(pretty)
		}
	}
	if !r.opts.Color {
		return text
	}

	lexer := lexers.Get("json")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := lexer.Tokenise(nil, text)
	if err != nil {
		r.log.Debug("Failed to tokenize JSON, using plain text", "error", err)
		return text
	}
	var buf strings.Builder
	if err := r.formatter.Format(&buf, styles.Get("monokai"), iterator); err != nil {
		r.log.Debug("Failed to format JSON, using plain text", "error", err)
		return text
	}
	return buf.String()
}

// State renders a one-glance summary of an in-flight request
func (r *Renderer) State(s streaming.State) string {
	var b strings.Builder

	phase := s.Phase
	if phase == "" {
		phase = "waiting"
	}
	fmt.Fprintf(&b, "%s %s\n", r.phaseStyle.Render(phase), progressBar(s.Progress, 20))

	for _, a := range s.Agents {
		line := fmt.Sprintf("  %-12s %-10s %3.0f%%", a.Name, a.Status, a.Progress)
		if a.Message != "" {
			line += "  " + a.Message
		}
		b.WriteString(r.dimStyle.Render(line))
		b.WriteString("\n")
	}

	if len(s.Sources) > 0 {
		fmt.Fprintf(&b, "  %d sources\n", len(s.Sources))
	}
	if s.Err != nil {
		b.WriteString(r.errorStyle.Render(s.Err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

// Sources renders a numbered citation list
func (r *Renderer) Sources(sources []event.Source) string {
	var b strings.Builder
	for i, src := range sources {
		title := src.Title
		if title == "" {
			title = src.URL
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, title)
		if title != src.URL {
			b.WriteString(r.dimStyle.Render("    " + src.URL))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Session renders a research session summary
func (r *Renderer) Session(s research.Session, status research.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.agentStyle.Render("session "+s.ID), r.phaseStyle.Render(string(status)))
	fmt.Fprintf(&b, "  plan:     %s\n", s.PlanMessageID)
	fmt.Fprintf(&b, "  activity: %s\n", strings.Join(s.ActivityMessageIDs, ", "))
	if s.ReportMessageID != "" {
		fmt.Fprintf(&b, "  report:   %s\n", s.ReportMessageID)
	}
	return b.String()
}

func progressBar(progress float64, width int) string {
	filled := int(progress / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return fmt.Sprintf("[%s%s] %3.0f%%", strings.Repeat("#", filled), strings.Repeat("-", width-filled), progress)
}
