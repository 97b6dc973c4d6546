package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/bptb/internal/config"
	"github.com/skalibog/bptb/pkg/logger"
	"github.com/skalibog/bptb/pkg/models"
	"go.uber.org/zap"
)

// Стили UI
var (
	// Основные цвета
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")
	// Главный контейнер
	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	// Заголовок
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	// Заголовки секций
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(secondaryColor).
				Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	// Футер
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// TermUI терминальный интерфейс: сигнал, позиция, сводка сессии и
// хвост логов. Данные приходят от торгового цикла через Update-методы.
type TermUI struct {
	mu      sync.RWMutex
	signal  *models.Signal
	pos     models.Position
	report  *models.SessionReport
	logs    []string
	config  config.UIConfig
	program *tea.Program
	width   int
	height  int
	logFile string
}

// Сообщения для обновления UI
type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

func NewTermUI(cfg config.UIConfig) *TermUI {
	ui := &TermUI{
		logs:    []string{"BPTB запущен. Ожидание данных..."},
		config:  cfg,
		width:   120,
		height:  40,
		logFile: "bptb.json.log",
	}

	// Хвост логов перечитывается из файла по таймеру
	refresh := time.Duration(cfg.RefreshRate) * time.Millisecond
	if refresh <= 0 {
		refresh = time.Second
	}
	go func() {
		ticker := time.NewTicker(refresh)
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

// Run запускает интерфейс и блокируется до выхода
func (ui *TermUI) Run() error {
	model := bubbleModel{ui: ui}
	ui.program = tea.NewProgram(model, tea.WithAltScreen())

	if _, err := ui.program.Run(); err != nil {
		return fmt.Errorf("ошибка запуска UI: %w", err)
	}
	return nil
}

// Quit завершает интерфейс снаружи
func (ui *TermUI) Quit() {
	if ui.program != nil {
		ui.program.Quit()
	}
}

// UpdateSignal обновляет текущий сигнал и позицию
func (ui *TermUI) UpdateSignal(sig *models.Signal, pos models.Position) {
	ui.mu.Lock()
	ui.signal = sig
	ui.pos = pos
	ui.mu.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// UpdateReport обновляет сводку сессии
func (ui *TermUI) UpdateReport(report models.SessionReport) {
	ui.mu.Lock()
	ui.report = &report
	ui.mu.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// Чтение хвоста JSON-лога
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

	// Регулярное выражение для удаления ANSI-цветов
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

	ui.mu.Lock()
	defer ui.mu.Unlock()

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
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height

	case refreshMsg:
		// Просто обновляем UI
	}

	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.mu.RLock()
	defer m.ui.mu.RUnlock()

	title := titleStyle.Render("BPTB - Binance Price-Action Trading Bot")
	signal := renderSignalSection(m.ui.signal)
	position := renderPositionSection(m.ui.pos, m.ui.signal)
	session := renderSessionSection(m.ui.report)
	logs := renderLogsSection(m.ui.logs)
	footer := footerStyle.Render("Клавиши: Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			signal,
			"\n",
			position,
			"\n",
			session,
			"\n",
			logs,
			"\n",
			footer,
		),
	)
}

func renderSignalSection(sig *models.Signal) string {
	header := sectionHeaderStyle.Render("СИГНАЛ")
	content := strings.Builder{}

	if sig == nil {
		content.WriteString("  Ожидание данных...\n")
	} else {
		content.WriteString(fmt.Sprintf("  %s: %s (уверенность %d%%) Цена: %.2f\n",
			sig.Symbol, formatSignalText(sig.Kind), sig.Confidence, sig.Price))
		content.WriteString(fmt.Sprintf("  Тренд: %s / основной: %s  MA10: %.2f  MA30: %.2f  MA60: %.2f\n",
			sig.Trend, sig.MainTrend, sig.MA10, sig.MA30, sig.MA60))
		content.WriteString(fmt.Sprintf("  Объем: x%.2f  OBV: %s", sig.Volume.VolumeRatio, sig.OBV.Trend))
		if sig.OBV.Divergence {
			content.WriteString("  дивергенция!")
		}
		content.WriteString("\n")
		for _, r := range sig.Reasons {
			content.WriteString("  - " + r + "\n")
		}
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

func renderPositionSection(pos models.Position, sig *models.Signal) string {
	header := sectionHeaderStyle.Render("ПОЗИЦИЯ")
	content := strings.Builder{}

	if pos.State == models.PositionNone {
		content.WriteString("  Нет открытой позиции\n")
	} else {
		price := 0.0
		if sig != nil {
			price = sig.Price
		}
		pnl := pos.UnrealizedPnL(price)

		pnlStyle := lipgloss.NewStyle().Foreground(successColor)
		if pnl < 0 {
			pnlStyle = lipgloss.NewStyle().Foreground(errorColor)
		}

		content.WriteString(fmt.Sprintf("  %s  вход: %.2f  объем: %.6f  PnL: %s\n",
			pos.State, pos.EntryPrice, pos.Size,
			pnlStyle.Render(fmt.Sprintf("%.2f%%", pnl))))
		if len(pos.PyramidLevels) > 0 {
			content.WriteString(fmt.Sprintf("  Докупок: %d, последняя по %.2f\n",
				len(pos.PyramidLevels), pos.LastPyramidPrice))
		}
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

func renderSessionSection(report *models.SessionReport) string {
	header := sectionHeaderStyle.Render("СЕССИЯ")
	content := strings.Builder{}

	if report == nil {
		content.WriteString("  Отчет еще не сформирован\n")
	} else {
		content.WriteString(fmt.Sprintf("  Сигналов: %d (BUY: %d, SELL: %d, HOLD: %d)\n",
			report.TotalSignals,
			report.SignalCounts[models.SignalBuy],
			report.SignalCounts[models.SignalSell],
			report.SignalCounts[models.SignalHold]))
		content.WriteString(fmt.Sprintf("  Диапазон цены: %.2f - %.2f\n",
			report.PriceLow, report.PriceHigh))
		content.WriteString(fmt.Sprintf("  Открыто: %d  Закрыто: %d  PnL: %.4f  Win rate: %.1f%%\n",
			report.Opened, report.Closed, report.RealizedQuote, report.WinRate))
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
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

		// Выделение по уровню логирования
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
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

func formatSignalText(kind models.SignalKind) string {
	var style lipgloss.Style

	switch kind {
	case models.SignalBuy:
		style = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case models.SignalSell:
		style = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	default:
		style = lipgloss.NewStyle().Foreground(warningColor)
	}

	return style.Render(string(kind))
}
