package audit

import (
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nextrole/conveyor/internal/model"
)

// Lines per record in the list view (title + subtitle + blank separator).
const rowHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	rowTitleStyle = lipgloss.NewStyle().
			Bold(true)

	rowSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedRowTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")). // bright white
				Background(lipgloss.Color("24"))  // dark blue bg

	selectedRowSubtitleStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("252")).
					Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	summaryDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	summaryHintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Italic(true)

	summaryBodyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))
)

// stateColors maps lifecycle states to terminal colors for the detail view.
var stateColors = map[model.JobState]lipgloss.Color{
	model.StateNew:       lipgloss.Color("39"),  // blue
	model.StateActive:    lipgloss.Color("42"),  // green
	model.StateStale:     lipgloss.Color("214"), // amber
	model.StateExpired:   lipgloss.Color("240"), // gray
	model.StateDuplicate: lipgloss.Color("135"), // purple
}

func renderState(s model.JobState) string {
	color, ok := stateColors[s]
	if !ok {
		color = lipgloss.Color("252")
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(s))
}

type auditModel struct {
	canonical  []model.CanonicalJob
	duplicates []model.CanonicalJob
	titleByID  map[string]string
	childCount map[string]int

	leftViewport  viewport.Model
	rightViewport viewport.Model
	activePane    int // 0=left (canonical), 1=right (duplicates)
	leftCursor    int
	rightCursor   int
	width         int
	height        int
	ready         bool

	// Detail view state
	view           viewState
	detailJob      model.CanonicalJob
	detailViewport viewport.Model
	showSummary    bool

	wantQuit bool
}

func (m auditModel) Init() tea.Cmd {
	return nil
}

func (m auditModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m auditModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m auditModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if m.detailJob.ApplyURL != "" {
			openURL(m.detailJob.ApplyURL)
		}
		return m, nil
	case "r":
		if m.detailJob.Summary != "" {
			m.showSummary = !m.showSummary
			m.detailViewport.SetContent(m.renderDetail())
			m.detailViewport.SetYOffset(0)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *auditModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.canonical)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.duplicates)-1, 0))
	}
}

func (m *auditModel) ensureCursorVisible() {
	var vp *viewport.Model
	var cursor int
	if m.activePane == 0 {
		vp = &m.leftViewport
		cursor = m.leftCursor
	} else {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	cursorTop := cursor * rowHeight
	cursorBottom := cursorTop + rowHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m auditModel) openDetailView() (tea.Model, tea.Cmd) {
	records := m.activeRecords()
	cursor := m.activeCursor()
	if len(records) == 0 {
		return m, nil
	}

	m.view = viewDetail
	m.detailJob = records[cursor]
	m.showSummary = false
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())
	return m, nil
}

func (m *auditModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *auditModel) recalcContent() {
	m.leftViewport.SetContent(renderCanonicalRows(m.canonical, m.leftCursor, m.activePane == 0))
	m.rightViewport.SetContent(renderDuplicateRows(m.duplicates, m.rightCursor, m.activePane == 1))
}

func (m auditModel) activeRecords() []model.CanonicalJob {
	if m.activePane == 0 {
		return m.canonical
	}
	return m.duplicates
}

func (m auditModel) activeCursor() int {
	if m.activePane == 0 {
		return m.leftCursor
	}
	return m.rightCursor
}

func (m auditModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.view == viewDetail {
		return m.viewDetail()
	}

	return m.viewList()
}

func (m auditModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" Canonical (%d)", len(m.canonical))
	rightHeader := fmt.Sprintf(" Duplicates (%d)", len(m.duplicates))

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	leftPane := leftBorder.Render(m.leftViewport.View())
	rightPane := rightBorder.Render(m.rightViewport.View())

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, " ", rightPane)

	live, stale, expired := 0, 0, 0
	for _, r := range m.canonical {
		switch r.State {
		case model.StateStale:
			stale++
		case model.StateExpired:
			expired++
		default:
			live++
		}
	}
	statusText := fmt.Sprintf(" %d active | %d stale | %d expired | %d duplicates    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		live, stale, expired, len(m.duplicates))
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m auditModel) viewDetail() string {
	title := detailTitleStyle.Render("Record Details")

	border := activeBorderStyle.Width(m.width - 2)
	content := border.Render(m.detailViewport.View())

	statusText := " o open URL  esc/backspace back  ↑/↓ scroll  q quit"
	if m.detailJob.Summary != "" {
		statusText = " o open URL  r summary  esc/backspace back  ↑/↓ scroll  q quit"
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func (m auditModel) renderDetail() string {
	j := m.detailJob
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}
	addStyled := func(label, rendered string) {
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(rendered)
		b.WriteByte('\n')
	}

	addField("Title", j.Title)
	addField("Company", j.Company)
	addField("Location", j.Location.String())
	addField("Record ID", j.ID)
	addField("Source", string(j.Source))
	addStyled("State", renderState(j.State))
	addField("Quality", fmt.Sprintf("%d/100", j.QualityScore))

	b.WriteByte('\n')

	if j.Remote != model.RemoteUnknown {
		addField("Remote", string(j.Remote))
	}
	if j.JobType != model.JobTypeUnknown {
		addField("Type", string(j.JobType))
	}
	if j.Experience != model.ExperienceUnknown {
		addField("Experience", string(j.Experience))
	}
	addField("Salary", formatSalary(j.Salary))
	addField("Required", strings.Join(j.RequiredSkills, ", "))
	addField("Preferred", strings.Join(j.PreferredSkills, ", "))

	b.WriteByte('\n')

	addField("Posted At", fmtTime(j.PostedAt))
	if j.ExpiresAt != nil {
		addField("Deadline", fmtTime(*j.ExpiresAt))
	}
	addField("First Seen", fmtTime(j.FirstSeenAt))
	addField("Last Checked", fmtTime(j.LastCheckedAt))
	addField("Sightings", fmt.Sprintf("%d", j.CheckCount))

	b.WriteByte('\n')

	addField("Content Hash", shortHash(j.DedupHash))
	if j.IsDuplicate && j.ParentJobID != "" {
		parent := j.ParentJobID
		if title, ok := m.titleByID[j.ParentJobID]; ok {
			parent = fmt.Sprintf("%s (%s)", j.ParentJobID, title)
		}
		addField("Duplicate Of", parent)
	}
	if n := m.childCount[j.ID]; n > 0 {
		addField("Duplicates", fmt.Sprintf("%d linked", n))
	}

	b.WriteByte('\n')
	addField("Apply URL", j.ApplyURL)

	if j.Summary != "" {
		wrapWidth := max(m.width-8, 20)
		b.WriteByte('\n')
		if m.showSummary {
			label := "── Summary "
			fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
			b.WriteString(summaryDividerStyle.Render(label+fill) + "\n\n")
			b.WriteString(summaryBodyStyle.Render(wordWrap(j.Summary, wrapWidth)) + "\n")
		} else {
			b.WriteString(summaryHintStyle.Render("  press r to read the summary") + "\n")
		}
	}

	return b.String()
}

func formatSalary(s *model.SalaryRange) string {
	if s == nil {
		return ""
	}
	currency := s.Currency
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%s %d - %d", currency, s.Min, s.Max)
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func renderCanonicalRows(records []model.CanonicalJob, cursor int, isActive bool) string {
	return renderRows(records, cursor, isActive, func(r model.CanonicalJob) string {
		return fmt.Sprintf("%s · %s · %s", r.Company, r.PostedAt.Format("2006-01-02"), r.State)
	})
}

func renderDuplicateRows(records []model.CanonicalJob, cursor int, isActive bool) string {
	return renderRows(records, cursor, isActive, func(r model.CanonicalJob) string {
		return fmt.Sprintf("%s · → %s", r.Company, r.ParentJobID)
	})
}

func renderRows(records []model.CanonicalJob, cursor int, isActive bool, subtitle func(model.CanonicalJob) string) string {
	if len(records) == 0 {
		return "  (no records)"
	}

	var b strings.Builder
	for i, r := range records {
		isSelected := isActive && i == cursor

		titleSt := rowTitleStyle
		subtitleSt := rowSubtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedRowTitleStyle
			subtitleSt = selectedRowSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(r.Title))
		b.WriteByte('\n')

		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(subtitle(r)))
		b.WriteByte('\n')

		if i < len(records)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func sortByPosted(records []model.CanonicalJob) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].PostedAt.After(records[j].PostedAt)
	})
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunAuditTUI launches the interactive split-pane catalog audit: canonical
// records on the left, their linked duplicates on the right. Returns
// wantQuit=true if the user pressed q/ctrl+c, false if they pressed esc to
// return to the picker.
func RunAuditTUI(records []model.CanonicalJob) (bool, error) {
	var canonical, duplicates []model.CanonicalJob
	titleByID := make(map[string]string, len(records))
	childCount := make(map[string]int)
	for _, r := range records {
		titleByID[r.ID] = r.Title
		if r.IsDuplicate {
			duplicates = append(duplicates, r)
			childCount[r.ParentJobID]++
		} else {
			canonical = append(canonical, r)
		}
	}
	sortByPosted(canonical)
	sortByPosted(duplicates)

	m := auditModel{
		canonical:  canonical,
		duplicates: duplicates,
		titleByID:  titleByID,
		childCount: childCount,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	final := result.(auditModel)
	return final.wantQuit, nil
}
