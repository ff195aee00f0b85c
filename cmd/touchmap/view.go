package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/1F47E/touchmap/pkg/mapview"
	"github.com/1F47E/touchmap/pkg/metrics"
	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/query"
	"github.com/1F47E/touchmap/pkg/viewport"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Browse the map in the terminal",
	Long: `Show the map in the terminal. Arrows pan, +/- zoom, digits toggle layers
and a mouse click shows the attributes of the feature under the pointer.`,
	RunE: runView,
}

var metricsAddr string

func init() {
	viewCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address, overrides metrics.addr")
}

const (
	// pan step as a fraction of the screen
	panStep  = 0.1
	zoomIn   = 1.1
	zoomOut  = 0.9
	footerSz = 6
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	ZoomIn  key.Binding
	ZoomOut key.Binding
	Layer   key.Binding
	Info    key.Binding
	Reset   key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.ZoomIn, k.ZoomOut, k.Layer, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		// one entry covers all four arrows
		{k.Up, k.Reset},
		{k.ZoomIn, k.ZoomOut},
		{k.Layer, k.Info, k.Help, k.Quit},
	}
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/↓/←/→", "pan")),
	Down:    key.NewBinding(key.WithKeys("down", "j")),
	Left:    key.NewBinding(key.WithKeys("left", "h")),
	Right:   key.NewBinding(key.WithKeys("right", "l")),
	ZoomIn:  key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "zoom in")),
	ZoomOut: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "zoom out")),
	Layer:   key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "toggle layer")),
	Info:    key.NewBinding(key.WithKeys("i"), key.WithHelp("i/click", "info")),
	Reset:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// frameMsg carries the result of a gesture
type frameMsg struct {
	img    image.Image
	status string
	err    error
}

type infoMsg struct {
	result query.Result
	err    error
}

type viewModel struct {
	ctx     context.Context
	session *mapview.Session
	help    help.Model

	width  int
	height int

	img    image.Image
	status string
	info   string
	err    error
}

func newViewModel(ctx context.Context, s *mapview.Session) viewModel {
	return viewModel{
		ctx:     ctx,
		session: s,
		help:    help.New(),
		width:   80,
		height:  24,
		img:     s.Thumbnail(),
		status:  fmt.Sprintf("%s %s", s.Map().Name(), s.Extent()),
	}
}

func (m viewModel) Init() tea.Cmd {
	return nil
}

func (m viewModel) mapRows() int {
	return max(m.height-footerSz, 1)
}

// screenPoint converts a terminal cell to a screen pixel at its centre
func (m viewModel) screenPoint(col, row int) models.ScreenPoint {
	cfg := m.session.Viewport().Config()
	return models.ScreenPoint{
		X: (float64(col) + 0.5) * float64(cfg.ScreenWidth) / float64(m.width),
		Y: (float64(row) + 0.5) * float64(cfg.ScreenHeight) / float64(m.mapRows()),
	}
}

func (m viewModel) gesture(apply func(ctx context.Context) (image.Image, error)) tea.Cmd {
	return func() tea.Msg {
		img, err := apply(m.ctx)
		return frameMsg{img: img, status: m.session.Extent().String(), err: err}
	}
}

func (m viewModel) pan(dx, dy float64) tea.Cmd {
	cfg := m.session.Viewport().Config()
	return m.gesture(func(ctx context.Context) (image.Image, error) {
		return m.session.Move(ctx, dx*float64(cfg.ScreenWidth), dy*float64(cfg.ScreenHeight))
	})
}

func (m viewModel) scale(factor float64) tea.Cmd {
	return m.gesture(func(ctx context.Context) (image.Image, error) {
		return m.session.Scale(ctx, factor, factor)
	})
}

func (m viewModel) toggle(index int) tea.Cmd {
	layers := m.session.Layers()
	if index >= len(layers) {
		return nil
	}
	name := layers[index].Name()
	return func() tea.Msg {
		state, err := m.session.ToggleLayer(m.ctx, name)
		status := fmt.Sprintf("%s hidden", name)
		if state {
			status = fmt.Sprintf("%s visible", name)
		}
		return frameMsg{img: m.session.Thumbnail(), status: status, err: err}
	}
}

func (m viewModel) query(p models.ScreenPoint) tea.Cmd {
	return func() tea.Msg {
		result, err := m.session.Info(m.ctx, p)
		return infoMsg{result: result, err: err}
	}
}

func (m viewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		// arrows move the view, so the drag goes the other way
		case key.Matches(msg, keys.Up):
			return m, m.pan(0, panStep)
		case key.Matches(msg, keys.Down):
			return m, m.pan(0, -panStep)
		case key.Matches(msg, keys.Left):
			return m, m.pan(panStep, 0)
		case key.Matches(msg, keys.Right):
			return m, m.pan(-panStep, 0)
		case key.Matches(msg, keys.ZoomIn):
			return m, m.scale(zoomIn)
		case key.Matches(msg, keys.ZoomOut):
			return m, m.scale(zoomOut)
		case key.Matches(msg, keys.Reset):
			return m, m.gesture(m.session.Reset)
		case key.Matches(msg, keys.Layer):
			return m, m.toggle(int(msg.String()[0] - '1'))
		case key.Matches(msg, keys.Info):
			cfg := m.session.Viewport().Config()
			return m, m.query(models.ScreenPoint{X: float64(cfg.ScreenWidth) / 2, Y: float64(cfg.ScreenHeight) / 2})
		}

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft && msg.Y < m.mapRows() {
			return m, m.query(m.screenPoint(msg.X, msg.Y))
		}

	case frameMsg:
		m.err = msg.err
		if msg.img != nil {
			m.img = msg.img
		}
		if msg.err == nil {
			m.status = msg.status
		}
		var scaleErr *viewport.InvalidScaleError
		if errors.As(msg.err, &scaleErr) {
			m.err = errors.New("cannot zoom further")
		}
		return m, nil

	case infoMsg:
		m.err = msg.err
		if msg.err == nil {
			m.info = msg.result.Text
		}
		return m, nil
	}
	return m, nil
}

func (m viewModel) View() string {
	var b strings.Builder
	b.WriteString(m.renderMap())

	b.WriteString(titleStyle.Render(m.session.Map().Name()))
	b.WriteString(" ")
	b.WriteString(dimStyle.Render(m.status))
	b.WriteString("\n")
	b.WriteString(m.layerLine())
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
	case m.info != "":
		b.WriteString(infoStyle.Render(strings.ReplaceAll(m.info, "\n", " │ ")))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m viewModel) layerLine() string {
	parts := make([]string, 0)
	for i, l := range m.session.Layers() {
		label := fmt.Sprintf("%d:%s", i+1, l.Name())
		if l.Visible() {
			parts = append(parts, successStyle.Render(label))
		} else {
			parts = append(parts, dimStyle.Render(label))
		}
	}
	return strings.Join(parts, " ")
}

// renderMap draws the screen part of the image with half blocks, two
// pixels per cell: the top one as foreground, the bottom one as background
func (m viewModel) renderMap() string {
	if m.img == nil {
		return ""
	}
	cfg := m.session.Viewport().Config()
	imgW, imgH := cfg.ImageSize()
	marginX := float64(imgW-cfg.ScreenWidth) / 2
	marginY := float64(imgH-cfg.ScreenHeight) / 2

	rows := m.mapRows()
	bounds := m.img.Bounds()
	sample := func(col int, half float64) color.Color {
		x := marginX + (float64(col)+0.5)*float64(cfg.ScreenWidth)/float64(m.width)
		y := marginY + half*float64(cfg.ScreenHeight)/float64(rows*2)
		return m.img.At(bounds.Min.X+int(x), bounds.Min.Y+int(y))
	}

	styles := map[[2]string]lipgloss.Style{}
	var b strings.Builder
	for row := 0; row < rows; row++ {
		for col := 0; col < m.width; col++ {
			top := hexColor(sample(col, float64(row*2)+0.5))
			bottom := hexColor(sample(col, float64(row*2)+1.5))
			k := [2]string{top, bottom}
			style, ok := styles[k]
			if !ok {
				style = lipgloss.NewStyle().Foreground(lipgloss.Color(top)).Background(lipgloss.Color(bottom))
				styles[k] = style
			}
			b.WriteString(style.Render("▀"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func hexColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

func runView(cmd *cobra.Command, args []string) error {
	if !stdoutIsTerminal() {
		return errors.New("view needs an interactive terminal")
	}
	if cfg.Log.File == "" {
		// stderr would draw over the map
		logger = zap.NewNop()
	}
	ctx := cmd.Context()

	addr := cfg.Metrics.Addr
	if metricsAddr != "" {
		addr = metricsAddr
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if addr != "" {
		app := metrics.NewServer(reg)
		go func() {
			if err := app.Listen(addr); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer app.Shutdown()
	}

	m, closeMap, err := openMap(ctx)
	if err != nil {
		return err
	}
	defer closeMap()

	s, err := openSession(ctx, m, mapview.WithMetrics(metrics.New(reg)))
	if err != nil {
		return err
	}

	program := tea.NewProgram(newViewModel(ctx, s), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
