package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vishan-khatavkar/echoes-game/pkg/chat"
	"github.com/vishan-khatavkar/echoes-game/pkg/client"
	"github.com/vishan-khatavkar/echoes-game/pkg/session"
)

const (
	AgentName       = "Narrator"
	GameTitle       = "ECHOES OF THE VOID"
	PlaceHolderText = "What do you do?"
)

// gameAPI is the part of the API client the console uses.
type gameAPI interface {
	StartSession(ctx context.Context, username string) (*chat.SessionResponse, error)
	PlayTurn(ctx context.Context, username, message string) (*chat.TurnResponse, error)
}

// copyToClipboard is swapped out in tests.
var copyToClipboard = clipboard.WriteAll

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	api          gameAPI
	session      *chat.SessionResponse
	transcript   []string
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	notice       string
	loading      bool

	// Username prompt state
	showUserModal bool
	userInput     textinput.Model
	starting      bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type turnResponseMsg struct {
	response *chat.TurnResponse
	err      error
}

type sessionStartedMsg struct {
	session *chat.SessionResponse
	err     error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	levelUpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")). // gold
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, api gameAPI) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	ti := textinput.New()
	ti.Placeholder = "Spectre-41"
	ti.CharLimit = 64
	ti.Width = 30
	ti.SetValue(cfg.Username)
	ti.Focus()

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:        cfg,
		api:           api,
		textarea:      ta,
		userInput:     ti,
		chatViewport:  chatVp,
		metaViewport:  metaVp,
		showUserModal: true,
	}
}

func writeMetadata(s *chat.SessionResponse) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("SESSION") + "\n\n")

	content.WriteString("Player:\n")
	content.WriteString(s.Username + "\n\n")

	content.WriteString("Level:\n")
	content.WriteString(fmt.Sprintf("%d\n\n", s.Level))

	content.WriteString("Inventory:\n")
	if len(s.Inventory) == 0 {
		content.WriteString("Empty\n\n")
	} else {
		for _, item := range s.Inventory {
			content.WriteString(fmt.Sprintf("• %s\n", item))
		}
		content.WriteString("\n")
	}

	if len(s.Objectives) > 0 {
		content.WriteString("Objectives:\n")
		for _, o := range s.Objectives {
			content.WriteString(fmt.Sprintf("• %s\n", o))
		}
		content.WriteString("\n")
	}

	content.WriteString("Transcript:\n")
	content.WriteString(fmt.Sprintf("%d entries\n", s.HistoryLength))
	if s.Pending {
		content.WriteString(errorStyle.Render("Unsaved progress") + "\n")
	}

	content.WriteString("\n")
	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• Ctrl+Y: Copy reply\n")
	content.WriteString("• /help: Help\n")

	return content.String()
}

// writeChatContent rebuilds the transcript for the current viewport width.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding
	if chatWidth < 10 {
		chatWidth = 10
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render(GameTitle) + "\n\n")
	content.WriteString("Type what you do below and press Enter.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth)) + "\n\n")

	for _, line := range m.transcript {
		content.WriteString(formatEntry(line, chatWidth) + "\n\n")
	}

	if m.loading {
		content.WriteString(m.renderProgressBar() + "\n\n")
	}
	if m.notice != "" {
		content.WriteString(promptStyle.Render(m.notice) + "\n\n")
	}
	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

// formatEntry styles one transcript entry by who said it.
func formatEntry(line string, width int) string {
	switch {
	case strings.HasPrefix(line, session.PlayerPrefix):
		text := strings.TrimPrefix(line, session.PlayerPrefix)
		return userStyle.Render(session.PlayerPrefix) + wordwrap.String(text, width-len(session.PlayerPrefix))
	case strings.HasPrefix(line, "***"):
		return levelUpStyle.Render(wordwrap.String(line, width))
	default:
		return formatNarratorResponse(line, width)
	}
}

// lastNarratorLine is the most recent entry not typed by the player.
func lastNarratorLine(transcript []string) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		line := transcript[i]
		if strings.HasPrefix(line, session.PlayerPrefix) || strings.HasPrefix(line, "***") {
			continue
		}
		return line
	}
	return ""
}

func (m ConsoleUI) Init() tea.Cmd {
	if m.config.Username != "" {
		return m.startSession(m.config.Username)
	}
	return textinput.Blink
}

func (m *ConsoleUI) resize() {
	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Quit modal takes priority over everything
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	if m.showUserModal {
		return m.updateUserModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.writeChatContent()
		if m.session != nil {
			m.metaViewport.SetContent(writeMetadata(m.session))
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyCtrlY:
			m.copyLastReply()
			m.writeChatContent()
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.textarea.Reset()
			m.loading = true
			m.err = nil
			m.notice = ""
			m.progressTick = 0 // Reset progress animation
			m.writeChatContent()

			return m, tea.Batch(m.sendTurn(input), progressTick())
		}

	case turnResponseMsg:
		m.loading = false
		if msg.response != nil {
			m.applyTurn(msg.response)
		}
		m.err = msg.err
		m.writeChatContent()
		return m, nil

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()     // Refresh the chat content to update the progress bar
			return m, progressTick() // Continue the animation
		}
	}

	// Update components for non-mouse events
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// applyTurn adds a played turn to the transcript and refreshes the session.
func (m *ConsoleUI) applyTurn(resp *chat.TurnResponse) {
	if resp.PlayerLine != "" {
		m.transcript = append(m.transcript, resp.PlayerLine, resp.NarratorLine)
		m.transcript = append(m.transcript, resp.Extra...)
	}
	s := resp.Session
	m.session = &s
	m.metaViewport.SetContent(writeMetadata(m.session))
}

func (m *ConsoleUI) copyLastReply() {
	line := lastNarratorLine(m.transcript)
	if line == "" {
		m.notice = "Nothing to copy yet."
		return
	}
	if err := copyToClipboard(line); err != nil {
		m.err = fmt.Errorf("failed to copy to clipboard: %w", err)
		return
	}
	m.notice = "Copied the narrator's last reply."
}

func formatNarratorResponse(response string, width int) string {
	// Check if response already has a speaker prefix
	hasPrefix := false
	if idx := strings.Index(response, ":"); idx > 0 && idx <= 20 {
		speaker := response[:idx]
		if len(strings.Fields(speaker)) <= 2 {
			hasPrefix = true
		}
	}

	// If no prefix, we'll add "Narrator: " so reduce available width
	wrapWidth := width
	if !hasPrefix {
		wrapWidth = width - len(AgentName+": ")
	}

	wrapped := wordwrap.String(response, wrapWidth)
	lines := strings.Split(wrapped, "\n")
	formatted := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			formatted = append(formatted, "")
			continue
		}

		if idx := strings.Index(trimmed, ":"); idx > 0 && idx <= 20 {
			speaker := trimmed[:idx]
			if len(strings.Fields(speaker)) <= 2 {
				formatted = append(formatted, speakerStyle.Render(speaker+":")+trimmed[idx+1:])
				continue
			}
		}

		formatted = append(formatted, line)
	}

	result := strings.Join(formatted, "\n")
	if !hasPrefix {
		result = narratorStyle.Render(AgentName+": ") + result
	}
	return result
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))

	switch cmd {
	case "/help":
		m.notice = "Type what you do and press Enter. Ctrl+Y copies the narrator's last reply. " +
			"Your level rises as your story grows. Ctrl+C quits."
	case "/copy":
		m.copyLastReply()
	default:
		m.notice = fmt.Sprintf("Unknown command %s. Try /help.", cmd)
	}

	m.textarea.Reset()
	m.writeChatContent()
	return m, nil
}

func (m ConsoleUI) sendTurn(message string) tea.Cmd {
	username := m.session.Username
	return func() tea.Msg {
		resp, err := m.api.PlayTurn(context.Background(), username, message)
		if errors.Is(err, client.ErrUnsaved) {
			err = errors.New("your progress could not be saved yet; it will be retried")
		}
		return turnResponseMsg{response: resp, err: err}
	}
}

func (m ConsoleUI) startSession(username string) tea.Cmd {
	return func() tea.Msg {
		s, err := m.api.StartSession(context.Background(), username)
		return sessionStartedMsg{session: s, err: err}
	}
}

func (m ConsoleUI) updateUserModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case sessionStartedMsg:
		m.starting = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.session = msg.session
		m.transcript = append([]string(nil), msg.session.History...)
		m.showUserModal = false
		if m.width > 0 && m.height > 0 {
			m.resize()
			m.ready = true
		}
		m.writeChatContent()
		m.metaViewport.SetContent(writeMetadata(m.session))
		m.textarea.Focus()
		return m, textarea.Blink

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.starting {
				return m, nil
			}
			username := strings.TrimSpace(m.userInput.Value())
			if username == "" {
				m.err = errors.New("username cannot be empty")
				return m, nil
			}
			m.starting = true
			m.err = nil
			return m, m.startSession(username)
		}
	}

	var cmd tea.Cmd
	m.userInput, cmd = m.userInput.Update(msg)
	return m, cmd
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Game?"))
	content.WriteString("\n\n")
	content.WriteString("Your progress is saved after every turn.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderUserModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render(GameTitle))
	content.WriteString("\n\n")
	if m.starting {
		content.WriteString(loadingStyle.Render("Waking the ship's systems..."))
	} else {
		content.WriteString("Who are you?\n\n")
		content.WriteString(m.userInput.View())
		content.WriteString("\n\n")
		if m.err != nil {
			content.WriteString(errorStyle.Render(m.err.Error()))
			content.WriteString("\n\n")
		}
		content.WriteString(promptStyle.Render("Enter to begin, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if m.showUserModal {
		return m.renderUserModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"", // Add empty line for spacing
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
