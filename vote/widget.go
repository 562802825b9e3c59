package vote

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	formSelector = ".review-helpful-vote"
	yesSelector  = "button[name='is_positive'][value='yes']"
	noSelector   = "button[name='is_positive'][value='no']"

	selectedClass   = "btn-primary"
	unselectedClass = "btn-secondary"

	badgeHTML = `<span class="badge bg-light text-dark ms-1"></span>`
)

// Widget is one vote form of a parsed page.
//
// Widget mutates the document it was found in and is not safe for
// concurrent use.
type Widget struct {
	form   *goquery.Selection
	yes    *goquery.Selection
	no     *goquery.Selection
	action string
}

// Find returns a [Widget] for every vote form in doc that has both a yes and
// a no button. Form actions are resolved against pageURL.
//
// Returns an error if pageURL or any vote form's action cannot be parsed.
func Find(doc *goquery.Document, pageURL string) ([]*Widget, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	var widgets []*Widget
	var actionErr error
	doc.Find(formSelector).EachWithBreak(func(i int, form *goquery.Selection) bool {
		yes := form.Find(yesSelector).First()
		no := form.Find(noSelector).First()
		if yes.Length() == 0 || no.Length() == 0 {
			return true
		}

		action, _ := form.Attr("action")
		ref, err := url.Parse(strings.TrimSpace(action))
		if err != nil {
			actionErr = fmt.Errorf("vote form %d: invalid action %q: %w", i, action, err)
			return false
		}

		widgets = append(widgets, &Widget{
			form:   form,
			yes:    yes,
			no:     no,
			action: base.ResolveReference(ref).String(),
		})
		return true
	})
	if actionErr != nil {
		return nil, actionErr
	}
	return widgets, nil
}

// Action returns the absolute URL the vote is posted to.
func (w *Widget) Action() string {
	return w.action
}

// Count returns the tally shown on the yes or no button.
func (w *Widget) Count(isHelpful bool) int {
	return voteCount(w.button(isHelpful))
}

// Selected reports the current choice. ok is false when neither button is
// selected.
func (w *Widget) Selected() (isHelpful, ok bool) {
	switch {
	case w.yes.HasClass(selectedClass):
		return true, true
	case w.no.HasClass(selectedClass):
		return false, true
	default:
		return false, false
	}
}

// SetVote applies a vote to the widget.
//
// The other button's tally drops by one (never below zero) if it was
// selected, and the chosen button's tally rises by one if it was unselected.
// The chosen button then becomes selected and the other unselected.
func (w *Widget) SetVote(isHelpful bool) {
	selected := w.button(isHelpful)
	notSelected := w.button(!isHelpful)

	if notSelected.HasClass(selectedClass) {
		setVoteCount(notSelected, max(voteCount(notSelected)-1, 0))
	}
	if selected.HasClass(unselectedClass) {
		setVoteCount(selected, voteCount(selected)+1)
	}

	selected.AddClass(selectedClass).RemoveClass(unselectedClass)
	notSelected.AddClass(unselectedClass).RemoveClass(selectedClass)
}

// Values returns the form's fields with is_positive set to "yes" or "no".
func (w *Widget) Values(isHelpful bool) url.Values {
	values := formValues(w.form)
	if isHelpful {
		values.Set("is_positive", "yes")
	} else {
		values.Set("is_positive", "no")
	}
	return values
}

func (w *Widget) button(isHelpful bool) *goquery.Selection {
	if isHelpful {
		return w.yes
	}
	return w.no
}

// voteCount reads a button's badge. A missing or unreadable badge counts as 0.
func voteCount(button *goquery.Selection) int {
	badge := button.Find(".badge").First()
	if badge.Length() == 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(badge.Text()))
	if err != nil {
		return 0
	}
	return n
}

// setVoteCount writes a button's badge, removing it at zero.
func setVoteCount(button *goquery.Selection, count int) {
	badge := button.Find(".badge").First()
	if count == 0 {
		badge.Remove()
		return
	}
	if badge.Length() == 0 {
		button.AppendHtml(badgeHTML)
		badge = button.Find(".badge").Last()
	}
	badge.SetText(strconv.Itoa(count))
}

// formValues collects the successful controls of a form, the way a browser
// builds form data without a submitter.
func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}

	form.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
		name, ok := field.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := field.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(field) {
		case "textarea":
			values.Add(name, field.Text())
		case "select":
			field.Find("option").Each(func(_ int, opt *goquery.Selection) {
				if _, selected := opt.Attr("selected"); selected {
					values.Add(name, optionValue(opt))
				}
			})
		default:
			typ := strings.ToLower(field.AttrOr("type", "text"))
			switch typ {
			case "submit", "button", "image", "reset", "file":
				return
			case "checkbox", "radio":
				if _, checked := field.Attr("checked"); !checked {
					return
				}
				values.Add(name, field.AttrOr("value", "on"))
			default:
				values.Add(name, field.AttrOr("value", ""))
			}
		}
	})
	return values
}

func optionValue(opt *goquery.Selection) string {
	if v, ok := opt.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(opt.Text())
}
