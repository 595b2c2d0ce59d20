package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ASI-Josh/asiportal/internal/storage"
)

var (
	colorGreen  = color.New(color.FgGreen)
	colorRed    = color.New(color.FgRed)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
	colorBold   = color.New(color.Bold)
)

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorGreen.Sprint("✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorRed.Sprint("✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorYellow.Sprint("⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorBold.Sprint(label+":"), fmt.Sprintf(format, args...))
}

func printStep(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorCyan.Sprint("→ "+fmt.Sprintf(format, args...)))
}

// statusLabel colors an action status.
func statusLabel(status string) string {
	switch status {
	case "executed":
		return colorGreen.Sprint(status)
	case "failed", "rejected":
		return colorRed.Sprint(status)
	case "pending", "approved":
		return colorYellow.Sprint(status)
	default:
		return status
	}
}

func renderActions(w io.Writer, list []storage.Action) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Type", "Status", "Summary", "Requested By", "Created"})
	for _, a := range list {
		tw.AppendRow(table.Row{a.ID, a.ActionType, statusLabel(a.Status), truncate(a.Summary, 48), a.RequestedBy.Name, a.CreatedAt.Local().Format(time.DateTime)})
	}
	tw.Render()
}

func renderOutcomes(w io.Writer, outcomes []outcome) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Status", "Error"})
	for _, o := range outcomes {
		tw.AppendRow(table.Row{o.ID, statusLabel(o.Status), o.Error})
	}
	tw.Render()
}

func renderRecipients(w io.Writer, list []storage.Recipient) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Reviewer"})
	for _, r := range list {
		reviewer := ""
		if r.Reviewer {
			reviewer = "yes"
		}
		tw.AppendRow(table.Row{r.ID, r.DisplayName, r.Email, r.Role, reviewer})
	}
	tw.Render()
}

// printMessage writes one conversation message as a transcript entry.
func printMessage(w io.Writer, m storage.Message) {
	author := "You"
	if m.Role == "agent" {
		author = m.AgentName
	} else if m.AuthorID != "" {
		author = m.AuthorID
	}
	fmt.Fprintf(w, "%s %s\n", colorBold.Sprint(author+":"), m.Content)
	for _, warn := range m.Warnings {
		fmt.Fprintf(w, "  %s\n", colorYellow.Sprint("⚠ "+warn))
	}
	if len(m.ActionRequestIDs) > 0 {
		fmt.Fprintf(w, "  %s %s\n", colorCyan.Sprint("→ proposed:"), strings.Join(m.ActionRequestIDs, ", "))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
