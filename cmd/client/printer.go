package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/harrylevesque/firenet/internal/models"
	"github.com/harrylevesque/firenet/internal/push"
	"github.com/harrylevesque/firenet/internal/statussync"
)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
	labelColor = color.New(color.FgCyan)
)

func printOutcome(w io.Writer, o statussync.Outcome) {
	switch o.Kind {
	case statussync.KindSuccess:
		okColor.Fprint(w, "active")
		if o.Cached {
			warnColor.Fprintf(w, " (cached: %v)", o.Err)
		}
		fmt.Fprintln(w)
	case statussync.KindForbidden:
		errColor.Fprintln(w, "suspended")
		return
	case statussync.KindSessionInvalid:
		warnColor.Fprintln(w, "signed out: session is no longer valid")
		return
	default:
		errColor.Fprintf(w, "unavailable: %v\n", o.Err)
		return
	}
	printStatus(w, o.Status)
}

func printStatus(w io.Writer, s *models.AccountStatus) {
	if s == nil {
		return
	}
	row := func(k, v string) {
		labelColor.Fprintf(w, "  %-9s", k+":")
		fmt.Fprintln(w, v)
	}
	row("user", s.Username)
	if s.StatusLabel != nil {
		row("state", *s.StatusLabel)
	}
	if rem, ok := s.RemainingTraffic(); ok {
		row("traffic", fmt.Sprintf("%s left of %s", formatBytes(rem), formatBytes(*s.DataLimit)))
	} else {
		row("traffic", "unlimited")
	}
	if t, ok := s.Expiry(); ok {
		row("expires", t.Format(time.DateOnly))
	} else {
		row("expires", "never")
	}
	if len(s.AccessLinks) > 0 {
		row("links", fmt.Sprint(len(s.AccessLinks)))
	}
	switch s.UpdatePrompt() {
	case models.UpdateForced:
		errColor.Fprint(w, "  update required")
	case models.UpdateOptional:
		warnColor.Fprint(w, "  update available")
	default:
		return
	}
	if s.UpdateLink != nil {
		fmt.Fprintf(w, ": %s", *s.UpdateLink)
	}
	fmt.Fprintln(w)
}

func printNotice(w io.Writer, n push.Notice) {
	labelColor.Fprintf(w, "[%s] ", n.Title)
	fmt.Fprint(w, n.Body)
	if n.Link != "" {
		fmt.Fprintf(w, " <%s>", n.Link)
	}
	fmt.Fprintln(w)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
