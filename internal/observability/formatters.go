// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/prospector/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintCompany outputs the resolved company identity and source document.
func (p *Printer) PrintCompany(company *types.Company, doc *types.Document) {
	if company == nil {
		return
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Name:     %s\n", company.Name))
	if company.Ticker != "" {
		sb.WriteString(fmt.Sprintf("Ticker:   %s\n", company.Ticker))
	}
	sb.WriteString(fmt.Sprintf("CIK:      %s\n", company.ID))
	if company.SizeUSD > 0 {
		sb.WriteString(fmt.Sprintf("Size:     $%.1fB\n", company.SizeUSD/1e9))
	}
	if company.Industry != "" {
		sb.WriteString(fmt.Sprintf("Industry: %s\n", company.Industry))
	}

	if doc != nil {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Filing:   %s (%s)", doc.Accession, doc.FilingDate))
		if doc.FromCache {
			sb.WriteString(" [cached]")
		}
		sb.WriteString("\n")
	}

	p.printBox("RESOLVED COMPANY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintPainPoints outputs the mined pain points with confidence and a
// grounding quote each.
func (p *Printer) PrintPainPoints(pains []types.PainPoint) {
	if len(pains) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d pain points:\n\n", len(pains)))

	count := min(len(pains), maxItemsToShow)
	for i := 0; i < count; i++ {
		pain := pains[i]
		sb.WriteString(fmt.Sprintf("#%d  %s\n", i+1, pain.Theme))
		sb.WriteString(fmt.Sprintf("    Confidence: %.2f\n", pain.Confidence))
		if len(pain.Quotes) > 0 {
			quote := pain.Quotes[0]
			if len(quote) > 45 {
				quote = quote[:42] + "..."
			}
			sb.WriteString(fmt.Sprintf("    \"%s\"\n", quote))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(pains) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more pain points", len(pains)-maxItemsToShow))
	}

	p.printBox("MINED PAIN POINTS", sb.String())
}

// PrintMatches outputs the scored product matches, best first.
func (p *Printer) PrintMatches(matches []types.ProductMatch) {
	if len(matches) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Scored %d matches:\n\n", len(matches)))

	count := min(len(matches), maxItemsToShow)
	for i := 0; i < count; i++ {
		match := matches[i]
		sb.WriteString(fmt.Sprintf("#%d  %s (%.0f)\n", i+1, match.ProductName, match.Score))
		pain := match.PainTheme
		if len(pain) > 45 {
			pain = pain[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("    Pain: %s\n", pain))
		why := match.Why
		if len(why) > 45 {
			why = why[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("    Why:  %s\n", why))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(matches) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more matches", len(matches)-maxItemsToShow))
	}

	p.printBox("PRODUCT MATCHES", sb.String())
}

// PrintPitch outputs the generated outreach pitch.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintPitch(pitch *types.Pitch) {
	if pitch == nil {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "NO PITCH GENERATED")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Persona:  %s\n", pitch.Persona))
	sb.WriteString(fmt.Sprintf("Subject:  %s\n", pitch.Subject))
	sb.WriteString("\n")

	for _, line := range strings.Split(pitch.Body, "\n") {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if len(pitch.KeyQuotes) > 0 {
		sb.WriteString("\nKey quotes:\n")
		count := min(len(pitch.KeyQuotes), 3)
		for i := 0; i < count; i++ {
			quote := pitch.KeyQuotes[i]
			if len(quote) > 45 {
				quote = quote[:42] + "..."
			}
			sb.WriteString(fmt.Sprintf("  • \"%s\"\n", quote))
		}
	}

	p.printBox("GENERATED PITCH", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSummary outputs the run totals after a pipeline completes.
func (p *Printer) PrintSummary(result *types.AnalysisResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company:      %s\n", result.Company.Name))
	sb.WriteString(fmt.Sprintf("Pain points:  %d\n", len(result.Pains)))
	sb.WriteString(fmt.Sprintf("Matches:      %d\n", len(result.Matches)))
	sb.WriteString(fmt.Sprintf("Tokens used:  %d", result.TokensUsed))

	p.printBox("ANALYSIS SUMMARY", sb.String())
}
