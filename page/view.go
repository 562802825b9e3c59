package page

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jpalmerr/taskpoll"
)

// hiddenClass hides the progress container.
const hiddenClass = "d-none"

// View is the rendered form of a task status payload.
type View struct {
	// ShowProgress is true for PROGRESS payloads.
	ShowProgress bool

	// Percent is the bar fill, clamped to [0, 100].
	Percent float64

	// Current and Total are copied into the bar's ARIA attributes.
	Current float64
	Total   float64

	// StatusText is the text of the #status element.
	StatusText string
}

// NewView computes the view for a payload.
//
// A PROGRESS payload shows the bar with
// "Status: in progress (current / total)" followed by a blank line and the
// running items as "author/name", comma separated. Any other status hides the
// bar and reads "Status: <status>", with PENDING shown as
// "pending or unknown". A PROGRESS payload whose result cannot be read is
// shown like a non-progress status.
func NewView(p taskpoll.Payload) View {
	if p.Status == taskpoll.StatusProgress {
		if prog, err := p.Progress(); err == nil {
			running := make([]string, len(prog.Running))
			for i, item := range prog.Running {
				running[i] = item.String()
			}
			return View{
				ShowProgress: true,
				Percent:      prog.Percent(),
				Current:      prog.Current,
				Total:        prog.Total,
				StatusText: fmt.Sprintf("Status: in progress (%s / %s)\n\n%s",
					formatNumber(prog.Current), formatNumber(prog.Total), strings.Join(running, ", ")),
			}
		}
	}
	return View{StatusText: "Status: " + p.Status.Label()}
}

// Render applies v to doc.
//
// Missing render targets are skipped.
func Render(doc *goquery.Document, v View) {
	progress := doc.Find("#progress").First()
	if v.ShowProgress {
		progress.RemoveClass(hiddenClass)

		bar := progress.Children().First()
		setStyleProperty(bar, "width", formatNumber(v.Percent)+"%")
		bar.SetAttr("aria-valuenow", formatNumber(v.Current))
		bar.SetAttr("aria-valuemax", formatNumber(v.Total))
	} else {
		progress.AddClass(hiddenClass)
	}

	doc.Find("#status").First().SetText(v.StatusText)
}

// FindTaskID returns the data-task-id of the first element carrying one.
// The boolean is false when there is none or it is empty.
func FindTaskID(doc *goquery.Document) (string, bool) {
	id, ok := doc.Find("[data-task-id]").First().Attr("data-task-id")
	if !ok || strings.TrimSpace(id) == "" {
		return "", false
	}
	return strings.TrimSpace(id), true
}

// setStyleProperty sets one declaration of the inline style attribute,
// keeping the others.
func setStyleProperty(s *goquery.Selection, property, value string) {
	if s.Length() == 0 {
		return
	}
	style, _ := s.Attr("style")

	var decls []string
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		name, _, _ := strings.Cut(decl, ":")
		if strings.EqualFold(strings.TrimSpace(name), property) {
			continue
		}
		decls = append(decls, decl)
	}
	decls = append(decls, property+": "+value)

	s.SetAttr("style", strings.Join(decls, "; ")+";")
}

// formatNumber prints whole numbers without a fraction and others in their
// shortest form.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
