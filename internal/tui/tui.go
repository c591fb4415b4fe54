// Package tui shows a simulation converging in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/lox/cointie/internal/simulator"
	"github.com/lox/cointie/internal/statistics"
)

const (
	maxBarWidth = 60
	maxEvents   = 5
)

// ProgressMsg carries a progress snapshot into the model
type ProgressMsg simulator.Progress

// DoneMsg signals the end of the run
type DoneMsg struct {
	Result *simulator.Result
	Err    error
}

// WatchModel is the Bubble Tea model for a running simulation
type WatchModel struct {
	logger *log.Logger
	bar    progress.Model

	trials   int
	flips    int
	expected float64

	latest     simulator.Progress
	lastDecile int
	events     []string

	result   *simulator.Result
	err      error
	quitting bool
}

// NewWatchModel creates a model for a run of trials trials with flips flips
// per player.
func NewWatchModel(logger *log.Logger, trials, flips int) *WatchModel {
	return &WatchModel{
		logger:   logger,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		trials:   trials,
		flips:    flips,
		expected: statistics.TieProbability(flips),
		latest:   simulator.Progress{Trials: trials},
	}
}

// Init implements tea.Model
func (m *WatchModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-4, 10), maxBarWidth)

	case ProgressMsg:
		m.latest = simulator.Progress(msg)
		decile := int(m.latest.Fraction() * 10)
		if decile > m.lastDecile {
			m.lastDecile = decile
			m.addEvent(fmt.Sprintf("%3d%%  estimate %.5f after %d trials",
				decile*10, m.latest.Estimate, m.latest.Completed))
		}

	case DoneMsg:
		m.result = msg.Result
		m.err = msg.Err
		if msg.Err != nil {
			m.logger.Debug("Simulation ended with error", "error", msg.Err)
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *WatchModel) addEvent(event string) {
	m.events = append(m.events, event)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

// View implements tea.Model
func (m *WatchModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("coin tie simulation"))
	b.WriteString(InfoStyle.Render(fmt.Sprintf("  %d trials × %d flips", m.trials, m.flips)))
	b.WriteString("\n\n")

	b.WriteString(m.bar.ViewAs(m.latest.Fraction()))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s %s   %s %.5f\n",
		LabelStyle.Render("estimate"),
		EstimateStyle.Render(fmt.Sprintf("%.5f", m.latest.Estimate)),
		LabelStyle.Render("expected"),
		m.expected)
	fmt.Fprintf(&b, "%s %d / %d\n", LabelStyle.Render("ties    "), m.latest.Equal, m.latest.Completed)

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, e := range m.events {
			b.WriteString(InfoStyle.Render(e))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(ErrorStyle.Render("error: " + m.err.Error()))
	case m.result != nil:
		b.WriteString(SuccessStyle.Render(fmt.Sprintf("done: %.5f (z %+.2f)", m.result.Probability, m.result.ZScore)))
	case m.quitting:
		b.WriteString(InfoStyle.Render("cancelled"))
	default:
		b.WriteString(InfoStyle.Render("press q to quit"))
	}
	b.WriteString("\n")

	return b.String()
}

// Result returns the finished result, or the error that ended the run.
func (m *WatchModel) Result() (*simulator.Result, error) {
	if m.quitting && m.result == nil && m.err == nil {
		return nil, context.Canceled
	}
	return m.result, m.err
}

// Watch runs the simulation described by cfg while rendering its progress.
// Quitting the view cancels the run.
func Watch(ctx context.Context, cfg simulator.Config, opts ...tea.ProgramOption) (*simulator.Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	model := NewWatchModel(logger, cfg.Trials, cfg.FlipsPerPlayer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append(opts, tea.WithContext(ctx))
	p := tea.NewProgram(model, opts...)

	cfg.OnProgress = func(pr simulator.Progress) {
		p.Send(ProgressMsg(pr))
	}

	go func() {
		result, err := simulator.New(cfg).Run(ctx)
		p.Send(DoneMsg{Result: result, Err: err})
	}()

	final, err := p.Run()
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	return final.(*WatchModel).Result()
}
