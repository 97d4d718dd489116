package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/clipvault/internal/client"
	"github.com/raphaelgruber/clipvault/internal/models"
	"github.com/raphaelgruber/clipvault/internal/notify"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Warning: lipgloss.Color("#FFAF00"), // amber
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) flaggedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// eventMsg carries one push event for the watched video.
type eventMsg notify.Event

// finishedMsg carries the final video state once watching ends.
type finishedMsg struct {
	video *client.Video
	err   error
}

// progressModel is the bubbletea model for a video's ingestion progress.
type progressModel struct {
	videoID  string
	percent  int
	message  string
	video    *client.Video
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(v *client.Video) progressModel {
	return progressModel{
		videoID:  v.ID,
		percent:  v.ProcessingProgress,
		message:  string(v.ProcessingStatus),
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
		theme:    defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.done = true
			return m, tea.Quit
		}

	case eventMsg:
		// Progress only moves forward even if events race the initial fetch.
		if msg.Data.Progress > m.percent {
			m.percent = msg.Data.Progress
		}
		if msg.Data.Message != "" {
			m.message = msg.Data.Message
		}
		return m, nil

	case finishedMsg:
		m.done = true
		m.video = msg.video
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%3d%%]", m.percent))
	bar := m.progress.ViewAs(float64(m.percent) / 100)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")
	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, m.message, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nVideo %s keeps processing on the server.\nUse 'clipvault watch %s' to follow it again.\n",
			m.videoID, m.videoID)
		return m.theme.hintStyle().Render(msg)
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Watch failed: %s\n", m.err))
	}
	return renderOutcome(m.theme, m.video)
}

// renderOutcome formats the terminal state of a video.
func renderOutcome(theme Theme, v *client.Video) string {
	if v == nil {
		return ""
	}

	var b strings.Builder
	switch v.ProcessingStatus {
	case models.StatusCompleted:
		if v.SensitivityStatus == models.SensitivityFlagged {
			b.WriteString(theme.flaggedStyle().Render("⚑ Flagged"))
		} else {
			b.WriteString(theme.completedStyle().Render("✓ Safe"))
		}
		fmt.Fprintf(&b, " (score %d)\n", v.SensitivityScore)
		if s := v.FrameSummary; s != nil {
			fmt.Fprintf(&b, "  Frames: %d flagged, %d safe, %d errored of %d\n", s.Flagged, s.Safe, s.Errored, s.Total)
		}
	case models.StatusFailed:
		b.WriteString(theme.errorStyle().Render("✗ Failed"))
		if v.Error != "" {
			fmt.Fprintf(&b, ": %s", v.Error)
		}
		b.WriteString("\n")
	case models.StatusRejected:
		b.WriteString(theme.errorStyle().Render("✗ Rejected"))
		if v.RejectReason != "" {
			fmt.Fprintf(&b, ": %s", v.RejectReason)
		}
		b.WriteString("\n")
	default:
		fmt.Fprintf(&b, "%s (%d%%)\n", v.ProcessingStatus, v.ProcessingProgress)
	}
	return b.String()
}

// followVideo shows live progress for a video until it reaches a terminal
// state. Ctrl+C detaches without affecting the server-side run.
func followVideo(ctx context.Context, c *client.Client, v *client.Video) error {
	if !interactive() {
		return followPlain(ctx, c, v.ID)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(v))
	go func() {
		final, err := c.WatchVideo(ctx, v.ID, func(ev notify.Event) {
			p.Send(eventMsg(ev))
		})
		p.Send(finishedMsg{video: final, err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil && !errors.Is(m.err, context.Canceled) {
			return m.err
		}
		if m.video != nil && m.video.ProcessingStatus == models.StatusFailed {
			return fmt.Errorf("processing failed")
		}
	}
	return nil
}

// followPlain prints one line per progress event. Used when stdout is not a terminal.
func followPlain(ctx context.Context, c *client.Client, id string) error {
	last := -1
	final, err := c.WatchVideo(ctx, id, func(ev notify.Event) {
		if ev.Name != notify.EventProgress || ev.Data.Progress <= last {
			return
		}
		last = ev.Data.Progress
		fmt.Printf("[%3d%%] %s\n", ev.Data.Progress, ev.Data.Message)
	})
	if err != nil {
		return fmt.Errorf("watch video: %w", err)
	}

	fmt.Print(renderOutcome(defaultTheme, final))
	if final.ProcessingStatus == models.StatusFailed {
		return fmt.Errorf("processing failed")
	}
	return nil
}
