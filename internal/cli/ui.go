package cli

import (
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/ingest/usecase"
)

var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	errorStyle   = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

func printBanner(w io.Writer, limits usecase.Limits) {
	printf(w, "%s %s\n", titleStyle.Render("GOSTAGE"), mutedStyle.Render(version))
	printf(w, "%s\n\n", mutedStyle.Render("up to "+strconv.Itoa(limits.MaxFiles)+" files per batch, "+
		usecase.FormatBytes(limits.MaxFileBytes)+" per file"))
}

func printDetails(w io.Writer, title string, details map[string]string) {
	printf(w, "%s\n", errorStyle.Render("✗ "+title))

	names := make([]string, 0, len(details))
	for name := range details {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		printf(w, "  %s %s\n", titleStyle.Render(name), mutedStyle.Render(details[name]))
	}
}

func printCommit(w io.Writer, res usecase.CommitResult) {
	for _, name := range res.Committed {
		printf(w, "%s %s\n", successStyle.Render("✓"), name)
	}
	if len(res.Failed) > 0 {
		printDetails(w, "upload failed", res.Failed)
	}
	for _, name := range res.Skipped {
		printf(w, "%s %s\n", mutedStyle.Render("·"), mutedStyle.Render(name+" already committed"))
	}
}

func printDatasets(w io.Writer, datasets []entity.Dataset) {
	if len(datasets) == 0 {
		printf(w, "%s\n", mutedStyle.Render("no datasets"))
		return
	}

	for _, d := range datasets {
		printf(w, "%s\n", titleStyle.Render(d.Name))
		for _, t := range d.Tables {
			cols := ""
			if t.Schema != nil {
				names := make([]string, 0, len(t.Schema.Columns))
				for _, c := range t.Schema.Columns {
					names = append(names, c.Name)
				}
				cols = " (" + strings.Join(names, ", ") + ")"
			}
			printf(w, "  %s%s\n", t.Name, mutedStyle.Render(cols))
		}
	}
}

// barObserver draws one progress bar per upload.
type barObserver struct {
	w    io.Writer
	mu   sync.Mutex
	bars map[string]*progressbar.ProgressBar
}

func newBarObserver(w io.Writer) *barObserver {
	return &barObserver{w: w, bars: make(map[string]*progressbar.ProgressBar)}
}

func (o *barObserver) UploadStarted(f entity.StagedFile) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.bars[f.ID] = progressbar.NewOptions64(100,
		progressbar.OptionSetWriter(o.w),
		progressbar.OptionSetDescription(f.Name),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (o *barObserver) UploadProgress(fileID string, pct float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if bar, ok := o.bars[fileID]; ok {
		_ = bar.Set64(int64(pct))
	}
}

func (o *barObserver) UploadSettled(fileID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	bar, ok := o.bars[fileID]
	if !ok {
		return
	}
	delete(o.bars, fileID)

	if err != nil {
		_ = bar.Exit()
		return
	}
	_ = bar.Finish()
}
