package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const maxAcceptRows = 200

var spinFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// TransferMsg is sent for every transfer the watcher delivers.
type TransferMsg struct {
	Hash     string
	From     string
	To       string
	Amount   string // base units
	Block    uint64
	LogIndex uint
}

// StatusMsg updates the status bar. A non-empty ErrMsg is terminal.
type StatusMsg struct {
	Contract string
	Endpoint string
	ErrMsg   string
}

// AcceptModel is the Bubble Tea model for the live list of incoming transfers.
type AcceptModel struct {
	Addresses []string
	Rows      []TransferMsg
	Status    StatusMsg
	Frame     int
	Quitting  bool
	cursor    int
}

// NewAcceptModel returns a model watching addresses.
func NewAcceptModel(addresses []string, contract, endpoint string) AcceptModel {
	return AcceptModel{
		Addresses: addresses,
		Status:    StatusMsg{Contract: contract, Endpoint: endpoint},
	}
}

type acceptTickMsg struct{}

func acceptSpinTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return acceptTickMsg{}
	})
}

func (m AcceptModel) Init() tea.Cmd { return acceptSpinTick() }

func (m AcceptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.Rows)-1 {
				m.cursor++
			}
		}

	case acceptTickMsg:
		m.Frame = (m.Frame + 1) % len(spinFrames)
		return m, acceptSpinTick()

	case TransferMsg:
		// Latest on top.
		m.Rows = append([]TransferMsg{msg}, m.Rows...)
		if len(m.Rows) > maxAcceptRows {
			m.Rows = m.Rows[:maxAcceptRows]
		}
		if m.cursor > 0 {
			m.cursor = min(m.cursor+1, len(m.Rows)-1)
		}

	case StatusMsg:
		if msg.Contract == "" {
			msg.Contract = m.Status.Contract
		}
		if msg.Endpoint == "" {
			msg.Endpoint = m.Status.Endpoint
		}
		m.Status = msg
	}

	return m, nil
}

func (m AcceptModel) View() string {
	if m.Quitting {
		return ""
	}

	var sb strings.Builder

	title := fmt.Sprintf("Incoming transfers  ·  token %s  ·  %d address(es)",
		TruncateAddr(m.Status.Contract), len(m.Addresses))
	sb.WriteString(StyleTitle.Render(title) + "\n")

	if m.Status.ErrMsg != "" {
		sb.WriteString(StyleError.Render("✗ "+m.Status.ErrMsg) + "\n\n")
	} else {
		sb.WriteString(StyleInfo.Render(fmt.Sprintf("%s watching via %s", spinFrames[m.Frame], m.Status.Endpoint)) + "\n\n")
	}

	const (
		wHash = 14
		wAddr = 14
		wVal  = 24
		wBlk  = 12
	)
	sep := StyleMeta.Render(strings.Repeat("─", wHash+2*wAddr+wVal+wBlk+8))

	sb.WriteString(
		padR(StyleDim.Render("TX"), wHash) + "  " +
			padR(StyleDim.Render("FROM"), wAddr) + "  " +
			padR(StyleDim.Render("TO"), wAddr) + "  " +
			padR(StyleDim.Render("AMOUNT"), wVal) + "  " +
			StyleDim.Render("BLOCK") + "\n",
	)
	sb.WriteString(sep + "\n")

	if len(m.Rows) == 0 {
		sb.WriteString(StyleMeta.Render("  Waiting for transfers…") + "\n")
	} else {
		for i, row := range m.Rows {
			line :=
				padR(StyleAddress.Render(TruncateAddr(row.Hash)), wHash) + "  " +
					padR(StyleAddress.Render(TruncateAddr(row.From)), wAddr) + "  " +
					padR(StyleSuccess.Render(TruncateAddr(row.To)), wAddr) + "  " +
					padR(StyleValue.Render(row.Amount), wVal) + "  " +
					StyleMeta.Render(fmt.Sprintf("#%d:%d", row.Block, row.LogIndex))

			if i == m.cursor {
				sb.WriteString(StyleSelected.Render(line) + "\n")
			} else {
				sb.WriteString(line + "\n")
			}
		}
		sb.WriteString(sep + "\n")
		sb.WriteString(StyleMeta.Render(fmt.Sprintf("  %d transfer(s) received", len(m.Rows))) + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(StyleMeta.Render("[ ↑↓ ] navigate   [ q ] quit"))
	sb.WriteString("\n")

	return sb.String()
}
