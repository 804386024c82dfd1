package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/internal/signals"
	"github.com/skalibog/dstrade/pkg/logger"
	"github.com/skalibog/dstrade/pkg/models"
)

// Стили UI
var (
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(secondaryColor).
				Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// TermUI представляет терминальный интерфейс
type TermUI struct {
	ctxBuilder *signals.ContextBuilder

	mu         sync.RWMutex
	signals    map[string]*models.Signal
	position   *models.Position
	evaluation *models.AiEvaluation
	evalSymbol string

	logs     []string
	logsMu   sync.RWMutex
	logFile  string
	config   config.UIConfig
	program  *tea.Program
	selected int
	width    int
	height   int
}

type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

func NewTermUI(cfg config.UIConfig, ctxBuilder *signals.ContextBuilder) *TermUI {
	ui := &TermUI{
		ctxBuilder: ctxBuilder,
		signals:    make(map[string]*models.Signal),
		logs:       []string{"dstrade запущен. Ожидание данных..."},
		config:     cfg,
		logFile:    "app.json.log",
		width:      120,
		height:     40,
	}

	if err := ui.loadLogsFromFile(); err != nil {
		ui.logs = append(ui.logs, fmt.Sprintf("Ошибка загрузки логов: %v", err))
	}

	// Периодически подтягиваем логи из файла
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := ui.loadLogsFromFile(); err != nil {
				logger.Warn("Ошибка загрузки логов", zap.Error(err))
			}
			if ui.program != nil {
				ui.program.Send(refreshMsg{})
			}
		}
	}()

	return ui
}

func (ui *TermUI) Start() {
	model := bubbleModel{ui: ui}
	ui.program = tea.NewProgram(model, tea.WithAltScreen())

	if _, err := ui.program.Run(); err != nil {
		fmt.Printf("Ошибка запуска UI: %v\n", err)
	}
}

// UpdateSignals обновляет панель сигналов
func (ui *TermUI) UpdateSignals(fused map[string]*models.Signal) {
	ui.mu.Lock()
	ui.signals = fused
	ui.mu.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// UpdatePosition обновляет панель позиции. nil означает плоское состояние.
func (ui *TermUI) UpdatePosition(position *models.Position) {
	ui.mu.Lock()
	ui.position = position
	if position == nil {
		ui.evaluation = nil
		ui.evalSymbol = ""
	}
	ui.mu.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// UpdateEvaluation обновляет панель последнего вердикта AI
func (ui *TermUI) UpdateEvaluation(symbol string, eval *models.AiEvaluation) {
	ui.mu.Lock()
	ui.evaluation = eval
	ui.evalSymbol = symbol
	ui.mu.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// loadLogsFromFile подтягивает хвост JSON-лога для панели логов
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var logs []string

	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)

	for scanner.Scan() {
		line := scanner.Text()

		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			level = ansiRegex.ReplaceAllString(level, "")

			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formattedMsg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)
			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formattedMsg += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}
			logs = append(logs, formattedMsg)
		} else {
			logs = append(logs, line)
		}

		if len(logs) > 50 {
			logs = logs[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	ui.logsMu.Lock()
	defer ui.logsMu.Unlock()
	if len(logs) > 0 {
		ui.logs = logs
	}
	return nil
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up":
			if m.ui.selected > 0 {
				m.ui.selected--
			}
		case "down":
			m.ui.mu.RLock()
			n := len(m.ui.signals)
			m.ui.mu.RUnlock()
			if m.ui.selected < n-1 {
				m.ui.selected++
			}
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height

	case refreshMsg:
		// Просто перерисовываем
	}

	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.mu.RLock()
	m.ui.logsMu.RLock()
	defer m.ui.mu.RUnlock()
	defer m.ui.logsMu.RUnlock()

	title := titleStyle.Render("dstrade - Deepseek Trading Engine")
	signalsPanel := renderSignalsSection(m.ui.signals, m.ui.selected)
	positionPanel := renderPositionSection(m.ui.position, m.ui.ctxBuilder)
	evalPanel := renderEvaluationSection(m.ui.evalSymbol, m.ui.evaluation)
	logs := renderLogsSection(m.ui.logs)
	footer := footerStyle.Render("Клавиши: ↑/↓ - навигация, Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			signalsPanel,
			"\n",
			positionPanel,
			"\n",
			evalPanel,
			"\n",
			logs,
			"\n",
			footer,
		),
	)
}

func renderSignalsSection(fused map[string]*models.Signal, selected int) string {
	header := sectionHeaderStyle.Render("СИГНАЛЫ")
	content := strings.Builder{}

	symbols := sortedSymbols(fused)
	if len(symbols) == 0 {
		content.WriteString("  Ожидание данных...\n")
	} else {
		for i, symbol := range symbols {
			sig := fused[symbol]

			price := math.NaN()
			if v, ok := sig.Metadata["close"]; ok {
				price = v
			}

			line := fmt.Sprintf("  %s: %s (%.2f) Цена: %.2f  %s",
				symbol, formatDirection(sig.Direction), sig.Confidence, price, sig.Reason)

			if i == selected {
				line = "> " + line[2:]
				line = lipgloss.NewStyle().Background(lipgloss.Color("#222222")).Render(line)
			}

			content.WriteString(line + "\n")
		}
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

func renderPositionSection(position *models.Position, ctxBuilder *signals.ContextBuilder) string {
	header := sectionHeaderStyle.Render("ПОЗИЦИЯ")
	content := strings.Builder{}

	if position == nil {
		content.WriteString("  Нет открытой позиции\n")
	} else {
		mark := ctxBuilder.CurrentPrice(position)
		pnl := position.UnrealizedPnL(mark)

		pnlStyle := lipgloss.NewStyle().Foreground(successColor)
		if pnl < 0 {
			pnlStyle = lipgloss.NewStyle().Foreground(errorColor)
		}

		content.WriteString(fmt.Sprintf("  %s %s x%.0f  объем: %.4f\n",
			position.Symbol, formatDirection(position.Direction),
			position.Leverage, position.Size))
		content.WriteString(fmt.Sprintf("  вход: %.2f  тек: %.2f  PnL: %s\n",
			position.EntryPrice, mark, pnlStyle.Render(fmt.Sprintf("%.2f", pnl))))
		content.WriteString(fmt.Sprintf("  TP: %.2f  SL: %.2f  открыта: %s\n",
			position.TakeProfit, position.StopLoss,
			position.OpenTime.Format("15:04:05")))
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

func renderEvaluationSection(symbol string, eval *models.AiEvaluation) string {
	header := sectionHeaderStyle.Render("AI-ОБЗОР")
	content := strings.Builder{}

	if eval == nil {
		content.WriteString("  Обзоров еще не было\n")
	} else {
		actionStyle := lipgloss.NewStyle().Foreground(warningColor)
		switch eval.Action {
		case models.ActionHold:
			actionStyle = lipgloss.NewStyle().Foreground(successColor)
		case models.ActionStopLoss:
			actionStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
		}

		content.WriteString(fmt.Sprintf("  %s: %s  риск: %s  уверенность: %.2f\n",
			symbol, actionStyle.Render(string(eval.Action)),
			eval.RiskLevel, eval.Confidence))
		content.WriteString(fmt.Sprintf("  %s\n", eval.Reason))
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

func renderLogsSection(logs []string) string {
	header := sectionHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	maxLogsToShow := 10
	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	for i := start; i < len(logs); i++ {
		log := logs[i]

		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}

		content.WriteString("  " + log + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

func formatDirection(direction models.Direction) string {
	switch direction {
	case models.DirectionLong:
		return lipgloss.NewStyle().Foreground(successColor).Bold(true).Render("LONG")
	case models.DirectionShort:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true).Render("SHORT")
	default:
		return lipgloss.NewStyle().Foreground(warningColor).Render("FLAT")
	}
}

func sortedSymbols(fused map[string]*models.Signal) []string {
	symbols := make([]string, 0, len(fused))
	for symbol := range fused {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
