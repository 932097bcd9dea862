package sync

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/charmbracelet/lipgloss"
)

// Alerter surfaces user-facing problems, such as an exceeded relay budget.
type Alerter interface {
	Alert(err error)
}

var bannerTmpl = template.Must(template.New("banner").Parse(`
{{ .Header }}
{{ if .Detail }}  {{ .Detail }}
{{ end }}{{ .Footer }}
`))

type bannerData struct {
	Header string
	Detail string
	Footer string
}

// RenderBanner writes a warning banner for err to w.
// Uses lipgloss for TTY-aware colored output (auto-strips ANSI when not a TTY).
// If err is nil, writes nothing.
func RenderBanner(err error, w io.Writer) {
	if err == nil {
		return
	}

	renderer := lipgloss.NewRenderer(w)
	yellow := renderer.NewStyle().Foreground(lipgloss.Color("3"))

	data := bannerData{
		Header: yellow.Render(fmt.Sprintf("⚠ %s", err)),
		Detail: bannerDetail(err),
		Footer: yellow.Render("Run 'mhk relay' on your own machine and start with --hostname to lift the limit."),
	}

	var buf strings.Builder
	_ = bannerTmpl.Execute(&buf, data)
	_, _ = io.WriteString(w, buf.String())
}

func bannerDetail(err error) string {
	switch err {
	case ErrTooManyFiles:
		return fmt.Sprintf("The public relay accepts at most %d files per project.", MaxPublicFiles)
	case ErrProjectTooLarge:
		return fmt.Sprintf("The public relay accepts at most %d bytes per project; remaining files were not sent.", MaxPublicSize)
	}
	return ""
}

// BannerAlerter renders every alert as a banner on W.
type BannerAlerter struct {
	W io.Writer
}

func (a BannerAlerter) Alert(err error) {
	RenderBanner(err, a.W)
}
