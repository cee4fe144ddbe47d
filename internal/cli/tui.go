package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/tessera/pkg/grid"
)

// Progress bar styles
var (
	barFilledStyle = styleBar
	barEmptyStyle  = lipgloss.NewStyle().Foreground(colorFaint)
	barLabelStyle  = lipgloss.NewStyle().Foreground(colorMuted)
)

const (
	defaultBarWidth = 40
	minBarWidth     = 10
)

// =============================================================================
// progressModel - Cell assignment progress
// =============================================================================

// progressMsg carries a progress update into the model.
type progressMsg grid.Progress

// finishMsg ends the program even if the last update never arrived.
type finishMsg struct{}

// progressModel is the bubbletea model that draws a single progress bar.
type progressModel struct {
	Label    string
	Done     int
	Total    int
	Width    int
	Finished bool
}

func newProgressModel(label string) progressModel {
	return progressModel{Label: label, Width: defaultBarWidth}
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.Done, m.Total = msg.Done, msg.Total
		if m.Total > 0 && m.Done >= m.Total {
			m.Finished = true
			return m, tea.Quit
		}
	case finishMsg:
		m.Finished = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		// Leave room for the label and the counters.
		m.Width = msg.Width - len(m.Label) - 24
		if m.Width > defaultBarWidth {
			m.Width = defaultBarWidth
		}
		if m.Width < minBarWidth {
			m.Width = minBarWidth
		}
	}
	return m, nil
}

func (m progressModel) View() string {
	frac := grid.Progress{Done: m.Done, Total: m.Total}.Fraction()
	filled := int(frac * float64(m.Width))
	if filled > m.Width {
		filled = m.Width
	}

	var b strings.Builder
	b.WriteString(barLabelStyle.Render(m.Label))
	b.WriteString(" ")
	b.WriteString(barFilledStyle.Render(strings.Repeat("█", filled)))
	b.WriteString(barEmptyStyle.Render(strings.Repeat("░", m.Width-filled)))
	b.WriteString(" ")
	b.WriteString(StyleNumber.Render(fmt.Sprintf("%3.0f%%", frac*100)))
	b.WriteString(StyleDim.Render(fmt.Sprintf(" %d/%d cells", m.Done, m.Total)))
	if m.Finished {
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// progressBar - Runs the model alongside the pipeline
// =============================================================================

// progressBar feeds pipeline progress into a bubbletea program. The program
// is started on the first report so that nothing is drawn for runs that
// fail before assignment begins.
type progressBar struct {
	ctx   context.Context
	label string
	out   io.Writer

	start   sync.Once
	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
	last    int
}

func newProgressBar(ctx context.Context, label string, out io.Writer) *progressBar {
	return &progressBar{ctx: ctx, label: label, out: out, last: -1}
}

// Report forwards p to the bar. Updates that would not move the bar by a
// whole percent are dropped.
func (b *progressBar) Report(p grid.Progress) {
	b.start.Do(b.run)

	b.mu.Lock()
	pct := int(p.Fraction() * 100)
	if pct == b.last && p.Done != p.Total {
		b.mu.Unlock()
		return
	}
	b.last = pct
	b.mu.Unlock()

	b.program.Send(progressMsg(p))
}

func (b *progressBar) run() {
	b.done = make(chan struct{})
	b.program = tea.NewProgram(newProgressModel(b.label),
		tea.WithContext(b.ctx),
		tea.WithInput(nil),
		tea.WithOutput(b.out),
	)
	go func() {
		defer close(b.done)
		_, _ = b.program.Run()
	}()
}

// Close stops the program and waits for its final frame.
func (b *progressBar) Close() {
	if b.program == nil {
		return
	}
	b.program.Send(finishMsg{})
	<-b.done
}
