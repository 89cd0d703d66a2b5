package ui

import (
	"fmt"
	"strings"

	"github.com/Mohsinsiddi/curvesim/internal/scenario"
	tea "github.com/charmbracelet/bubbletea"
)

// ReplayModel is the Bubble Tea model for stepping through a finished
// scenario run.
type ReplayModel struct {
	Report     *scenario.Report
	cursor     int
	showEvents bool
	Quitting   bool
}

// NewReplay creates a replay positioned on the first failing step, or the
// first step when the run passed.
func NewReplay(rep *scenario.Report) ReplayModel {
	m := ReplayModel{Report: rep, showEvents: true}
	for i, s := range rep.Steps {
		if !s.OK() {
			m.cursor = i
			break
		}
	}
	return m
}

// Cursor is the index of the selected step.
func (m ReplayModel) Cursor() int { return m.cursor }

func (m ReplayModel) Init() tea.Cmd { return nil }

func (m ReplayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	last := len(m.Report.Steps) - 1
	switch key.String() {
	case "q", "ctrl+c", "esc":
		m.Quitting = true
		return m, tea.Quit
	case "up", "k", "p":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "n":
		if m.cursor < last {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		if last >= 0 {
			m.cursor = last
		}
	case "f":
		for i := m.cursor + 1; i <= last; i++ {
			if !m.Report.Steps[i].OK() {
				m.cursor = i
				break
			}
		}
	case "e":
		m.showEvents = !m.showEvents
	}
	return m, nil
}

func (m ReplayModel) View() string {
	if m.Quitting {
		return ""
	}
	rep := m.Report
	var sb strings.Builder

	// ── Title ─────────────────────────────────────────────────────────────
	status := StyleSuccess.Render("passed")
	if n := len(rep.Failures()); n > 0 {
		status = StyleError.Render(fmt.Sprintf("%d failing", n))
	}
	sb.WriteString(StyleTitle.Render(fmt.Sprintf("▶ Scenario  ·  %s  ·  %d steps", rep.Name, len(rep.Steps))))
	sb.WriteString("  " + status + "\n")

	if len(rep.Steps) == 0 {
		sb.WriteString(StyleMeta.Render("  No steps.") + "\n\n" + replayControls() + "\n")
		return sb.String()
	}

	// ── Step list ─────────────────────────────────────────────────────────
	const (
		wIdx  = 4
		wAct  = 20
		wAcct = 14
		wOut  = 22
	)
	sb.WriteString(
		padR(StyleDim.Render("#"), wIdx) + "  " +
			padR(StyleDim.Render("ACTION"), wAct) + "  " +
			padR(StyleDim.Render("ACCOUNT"), wAcct) + "  " +
			padR(StyleDim.Render("OUT"), wOut) + "  " +
			StyleDim.Render("RESULT") + "\n")
	sb.WriteString(StyleMeta.Render(strings.Repeat("─", wIdx+wAct+wAcct+wOut+20)) + "\n")

	for i, s := range rep.Steps {
		out := "-"
		if s.Out != nil {
			out = Tokens(s.Out)
		}
		var result string
		switch {
		case !s.OK():
			result = StyleError.Render("✗ mismatch")
		case s.Reason != "":
			result = StyleWarning.Render("↺ reverted")
		default:
			result = StyleSuccess.Render("✓")
		}
		line := padR(fmt.Sprintf("%d", s.Index), wIdx) + "  " +
			padR(s.Action, wAct) + "  " +
			padR(s.Account, wAcct) + "  " +
			padR(out, wOut) + "  " +
			result
		if i == m.cursor {
			sb.WriteString(StyleSelected.Render(line) + "\n")
		} else {
			sb.WriteString(line + "\n")
		}
	}
	sb.WriteString("\n")

	// ── Detail ────────────────────────────────────────────────────────────
	sb.WriteString(m.detail(rep.Steps[m.cursor]))
	sb.WriteString("\n" + replayControls() + "\n")
	return sb.String()
}

func (m ReplayModel) detail(s scenario.StepResult) string {
	pairs := [][2]string{
		{"Supply", Tokens(s.State.Supply)},
		{"Reserve", ETH(s.State.Reserve)},
		{"Price", ETH(s.State.Price)},
		{"Market cap", ETH(s.State.MarketCap)},
		{"Liquidity added", fmt.Sprintf("%t", s.State.LiquidityAdded)},
	}
	if s.Note != "" {
		pairs = append([][2]string{{"Note", s.Note}}, pairs...)
	}
	if s.Reason != "" {
		pairs = append(pairs, [2]string{"Revert", s.Reason})
	}
	if s.Receipt != nil && s.Receipt.Migration != nil {
		mig := s.Receipt.Migration
		pairs = append(pairs, [2]string{"Migration",
			fmt.Sprintf("%s + %s tokens → %s", ETH(mig.EthAmount), Tokens(mig.TokenAmount), m.Report.Label(mig.Destination))})
	}

	var sb strings.Builder
	sb.WriteString(KeyValueBlock(fmt.Sprintf("Step %d · %s", s.Index, s.Action), pairs))
	sb.WriteString("\n")
	if !s.OK() {
		sb.WriteString(Err(s.Failure) + "\n")
	}
	if m.showEvents && s.Receipt != nil && len(s.Receipt.Events) > 0 {
		for _, e := range s.Receipt.Events {
			sb.WriteString("  " + EventLine(e, m.Report.Label) + "\n")
		}
	}
	return sb.String()
}

func replayControls() string {
	sep := StyleMeta.Render("   ")
	var sb strings.Builder
	sb.WriteString(StyleMeta.Render("[ ↑↓ / n p ]"))
	sb.WriteString(StyleMeta.Render(" step"))
	sb.WriteString(sep)
	sb.WriteString(StyleError.Render("[ f ]"))
	sb.WriteString(StyleMeta.Render(" next failure"))
	sb.WriteString(sep)
	sb.WriteString(StyleInfo.Render("[ e ]"))
	sb.WriteString(StyleMeta.Render(" events"))
	sb.WriteString(sep)
	sb.WriteString(StyleMeta.Render("[ q ]"))
	sb.WriteString(StyleMeta.Render(" quit"))
	return sb.String()
}

// RunReplay shows rep in an interactive viewer until the user quits.
func RunReplay(rep *scenario.Report, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(NewReplay(rep), opts...).Run()
	return err
}
