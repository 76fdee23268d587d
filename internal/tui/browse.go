package tui

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"canopy/internal/tree"
)

// Options configures a browsing session.
type Options struct {
	Title       string
	Description string // markdown
	// OnTurn runs after every completed request turn, e.g. to persist state.
	OnTurn func(ctx context.Context, st *tree.State) error
}

// Run browses t interactively until the user quits. st is mutated in place.
func Run(ctx context.Context, t *tree.Tree, st *tree.State, opts Options) error {
	applyColorProfilePreference()
	applyThemePreference()
	m := newBrowseModel(ctx, t, st, opts)
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type browseModel struct {
	ctx  context.Context
	tree *tree.Tree
	st   *tree.State
	opts Options

	keys keyMap
	help help.Model

	rows   []tree.Row
	cursor int

	width  int
	height int

	status string
	err    error
}

func newBrowseModel(ctx context.Context, t *tree.Tree, st *tree.State, opts Options) browseModel {
	m := browseModel{
		ctx:    ctx,
		tree:   t,
		st:     st,
		opts:   opts,
		keys:   defaultKeyMap(),
		help:   help.New(),
		width:  80,
		height: 24,
	}
	m.refresh("")
	return m
}

func (m browseModel) Init() tea.Cmd { return nil }

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		m.status = ""
		m.err = nil
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Select):
			m.toggleSelect()
		case key.Matches(msg, m.keys.Open):
			m.open()
		case key.Matches(msg, m.keys.Collapse):
			m.collapse()
		case key.Matches(msg, m.keys.MoveUp):
			m.move(-1)
		case key.Matches(msg, m.keys.MoveDown):
			m.move(1)
		}
	}
	return m, nil
}

func (m *browseModel) current() (tree.Row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return tree.Row{}, false
	}
	return m.rows[m.cursor], true
}

func (m *browseModel) toggleSelect() {
	row, ok := m.current()
	if !ok {
		return
	}
	sel := toggleSelection(m.tree, m.st, row.ID)
	m.submit(formValues(m.tree, sel, m.st.Expansion()), row.ID)
}

func (m *browseModel) open() {
	row, ok := m.current()
	if !ok {
		return
	}
	if !row.Expandable {
		m.status = fmt.Sprintf("%s has no children", row.Label)
		return
	}
	if row.Expanded {
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
		return
	}
	m.submit(openValues(m.tree, row.ID), row.ID)
}

func (m *browseModel) collapse() {
	row, ok := m.current()
	if !ok {
		return
	}
	if !row.Expanded {
		// Jump to the parent row.
		for i := m.cursor - 1; i >= 0; i-- {
			if m.rows[i].Depth < row.Depth {
				m.cursor = i
				return
			}
		}
		return
	}
	exp := m.st.Expansion()
	delete(exp, row.ID)
	m.submit(formValues(m.tree, m.st.Selection(), exp), row.ID)
}

func (m *browseModel) move(delta int) {
	row, ok := m.current()
	if !ok {
		return
	}
	if !m.tree.Shuffle() {
		m.status = "reordering is disabled for this tree"
		return
	}
	root := arrangement(m.st)
	if !moveSibling(root, row.ID, delta) {
		return
	}
	v, err := shuffleValues(m.tree, m.st, root)
	if err != nil {
		m.err = err
		return
	}
	m.submit(v, row.ID)
}

// submit runs one request turn and keeps the cursor on focusID.
func (m *browseModel) submit(v url.Values, focusID string) {
	var q tree.Queue
	out, err := m.tree.HandleRequest(m.ctx, m.st, tree.Values(v), &q)
	if err == nil {
		q.Drain()
		if m.opts.OnTurn != nil {
			err = m.opts.OnTurn(m.ctx, m.st)
		}
	}
	m.st.EndTurn()
	if err != nil {
		m.err = err
	} else if out.Changed {
		m.status = "selection: " + emptyAsDash(m.st.ValueString())
	}
	m.refresh(focusID)
}

func (m *browseModel) refresh(focusID string) {
	all := m.tree.VisibleRows(m.st)
	rows := make([]tree.Row, 0, len(all))
	for _, r := range all {
		if !r.Hidden {
			rows = append(rows, r)
		}
	}
	m.rows = rows
	if focusID != "" {
		for i, r := range m.rows {
			if r.ID == focusID {
				m.cursor = i
				return
			}
		}
	}
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m browseModel) View() string {
	title := m.opts.Title
	if title == "" {
		title = m.tree.ID()
	}
	parts := []string{styleTitle.Render(title)}
	if d := renderMarkdown(m.opts.Description, m.width-2); d != "" {
		parts = append(parts, d)
	}

	body := m.viewRows()
	if body == "" {
		body = styleMuted.Render("(empty tree)")
	}
	parts = append(parts, body)

	switch {
	case m.err != nil:
		parts = append(parts, styleError.Render("error: "+m.err.Error()))
	case m.status != "":
		parts = append(parts, styleMuted.Render(m.status))
	}
	parts = append(parts, m.help.View(m.keys))
	return strings.Join(parts, "\n\n")
}

func (m browseModel) viewRows() string {
	if len(m.rows) == 0 {
		return ""
	}
	// Keep the cursor in view; header and footer take roughly ten lines.
	h := m.height - 10
	if h < 5 {
		h = 5
	}
	start := 0
	if m.cursor >= h {
		start = m.cursor - h + 1
	}
	end := start + h
	if end > len(m.rows) {
		end = len(m.rows)
	}

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, m.renderRow(i, m.rows[i]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m browseModel) renderRow(i int, r tree.Row) string {
	glyph := "  "
	switch {
	case r.Expandable && r.Expanded:
		glyph = "▾ "
	case r.Expandable:
		glyph = "▸ "
	}
	mark := "[ ]"
	if m.tree.SelectMode() == tree.SelectSingle {
		mark = "( )"
	}
	if r.Selected {
		mark = strings.Replace(mark, " ", "x", 1)
	}
	line := strings.Repeat("  ", r.Depth) + glyph + mark + " " + r.Label
	if r.Image != nil {
		line += " " + styleMuted.Render("[img]")
	}
	if m.width > 0 {
		line = xansi.Truncate(line, m.width, "…")
	}
	switch {
	case i == m.cursor:
		return styleCursor.Render(line)
	case r.Selected:
		return styleSelected.Render(line)
	}
	return line
}

func emptyAsDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
