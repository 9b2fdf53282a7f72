package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/kestrad/modelgrab/internal/utils"
)

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("37")) // dark green
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14")) // cyan
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13")) // purple
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))  // green
)

func PrintSuccess(text string) {
	fmt.Println(successStyle.Render(text))
}
func PrintError(text string) {
	fmt.Println(errorStyle.Render(text))
}
func PrintWarning(text string) {
	fmt.Println(warningStyle.Render(text))
}
func PrintInfo(text string) {
	fmt.Println(infoStyle.Render(text))
}
func PrintDetail(text string) {
	fmt.Println(detailStyle.Render(text))
}

// Notifier is the presentation boundary: the engine returns typed errors
// and the adapter chosen here decides how they reach the user. The terminal
// notifier prints styled lines; anything running the engine headless can
// supply a logging implementation instead.
type Notifier interface {
	Error(msg string)
	Warning(msg string)
}

// Terminal renders notifications as styled lines on stdout.
type Terminal struct{}

func (Terminal) Error(msg string)   { PrintError(msg) }
func (Terminal) Warning(msg string) { PrintWarning(msg) }

// Logging routes notifications to the structured log instead of the
// terminal.
type Logging struct{}

func (Logging) Error(msg string) {
	log := utils.GetLogger("notify")
	log.Error().Msg(msg)
}

func (Logging) Warning(msg string) {
	log := utils.GetLogger("notify")
	log.Warn().Msg(msg)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// ProgressLine rewrites the current line with a download progress bar.
func ProgressLine(downloaded, total int64, speed string) {
	width := terminalWidth()
	var line string
	if total > 0 {
		percent := float64(downloaded) / float64(total)
		if percent > 1 {
			percent = 1
		}
		barWidth := 30
		filled := int(percent * float64(barWidth))
		bar := "[" + strings.Repeat("=", filled)
		if filled < barWidth {
			bar += ">" + strings.Repeat(" ", barWidth-filled-1)
		}
		bar += "]"
		line = fmt.Sprintf("%s %.1f%% %s/%s %s", bar, percent*100,
			utils.FormatBytes(uint64(downloaded)), utils.FormatBytes(uint64(total)), speed)
	} else {
		line = fmt.Sprintf("%s downloaded %s", utils.FormatBytes(uint64(downloaded)), speed)
	}
	if len(line) > width-1 {
		line = line[:width-1]
	}
	fmt.Printf("\r\033[K%s", progressStyle.Render(line))
}

// BatchLine rewrites the current line with batch completion progress.
func BatchLine(done, total int64, desc string) {
	fmt.Printf("\r\033[K%s", progressStyle.Render(fmt.Sprintf("images: %s done", desc)))
}

// EndProgress terminates an in-place progress line.
func EndProgress() {
	fmt.Println()
}
