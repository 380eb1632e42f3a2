package track

import (
	"fmt"
	"strings"
)

// ExportText renders one entry in the plain-text export format: title
// line, timestamp line, URL line, blank line, then the answers block.
func ExportText(e Entry) string {
	var b strings.Builder

	title := e.Title
	if title == "" {
		title = "Form"
	}
	fmt.Fprintf(&b, "Title: %s\n", title)
	fmt.Fprintf(&b, "Time: %s\n", exportTimestamp(e))

	url := e.URL
	if url == "" {
		url = "—"
	}
	fmt.Fprintf(&b, "URL: %s\n", url)
	b.WriteString("\n")

	if len(e.Answers) == 0 {
		b.WriteString("Answers: —\n")
		return b.String()
	}

	b.WriteString("Answers:\n")
	for _, a := range e.Answers {
		fmt.Fprintf(&b, "- %s\n", a.Question)
		for _, v := range a.Answers {
			fmt.Fprintf(&b, "  • %s\n", v)
		}
	}
	return b.String()
}

// ExportFilename derives the download filename from the entry timestamp
// truncated to second precision.
func ExportFilename(e Entry) string {
	ts := e.Time()
	if ts.IsZero() {
		return "report-" + e.ID + ".txt"
	}
	return "report-" + ts.UTC().Format("2006-01-02T15:04:05") + ".txt"
}

func exportTimestamp(e Entry) string {
	ts := e.Time()
	if ts.IsZero() {
		return e.Timestamp
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
