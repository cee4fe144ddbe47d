package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/tessera/pkg/pipeline"
)

// =============================================================================
// Palette
// =============================================================================

var (
	colorAccent = lipgloss.Color("36")  // teal
	colorOK     = lipgloss.Color("35")  // green
	colorWarn   = lipgloss.Color("220") // amber
	colorLink   = lipgloss.Color("75")  // light blue
	colorText   = lipgloss.Color("255")
	colorMuted  = lipgloss.Color("245")
	colorFaint  = lipgloss.Color("240")
)

// =============================================================================
// Styles
// =============================================================================

var (
	// StyleTitle is used for headings such as the tile directory in catalog.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)

	// StyleHighlight marks identifiers.
	StyleHighlight = lipgloss.NewStyle().Foreground(colorAccent)

	// StyleLink is used for published object URIs.
	StyleLink = lipgloss.NewStyle().Foreground(colorLink).Underline(true)

	// StyleDim is used for secondary text.
	StyleDim = lipgloss.NewStyle().Foreground(colorFaint)

	// StyleValue is used for plain values.
	StyleValue = lipgloss.NewStyle().Foreground(colorText)

	// StyleNumber is used for percentages and counters.
	StyleNumber = lipgloss.NewStyle().Foreground(colorAccent)

	// StyleWarning is used for warning text.
	StyleWarning = lipgloss.NewStyle().Foreground(colorWarn)
)

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorOK)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorWarn)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorMuted)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorAccent)

	styleKey     = lipgloss.NewStyle().Foreground(colorMuted).Width(12)
	styleCached  = lipgloss.NewStyle().Foreground(colorOK)
	styleBar     = lipgloss.NewStyle().Foreground(colorAccent)
	styleCommand = lipgloss.NewStyle().Foreground(colorLink)
)

const (
	iconSuccess = "✓"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
	iconCached  = "cached"
	separator   = " · "
)

// =============================================================================
// Status Lines
// =============================================================================

func printStatus(icon string, style lipgloss.Style, msg string) {
	fmt.Println(style.Render(icon) + " " + msg)
}

// printSuccess prints a success message.
func printSuccess(format string, args ...any) {
	printStatus(iconSuccess, styleIconSuccess, fmt.Sprintf(format, args...))
}

// printWarning prints a warning message.
func printWarning(format string, args ...any) {
	printStatus(iconWarning, styleIconWarning, StyleWarning.Render(fmt.Sprintf(format, args...)))
}

// printInfo prints a status message.
func printInfo(format string, args ...any) {
	printStatus(iconInfo, styleIconInfo, fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(format string, args ...any) {
	fmt.Println("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

// =============================================================================
// Outputs
// =============================================================================

// printFile prints the path of a written file.
func printFile(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

// printURI prints an uploaded object's location.
func printURI(uri string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleLink.Render(uri))
}

// printKeyValue prints a labeled value.
func printKeyValue(key, value string) {
	fmt.Println(styleKey.Render(key) + " " + StyleValue.Render(value))
}

// printNextStep prints a suggested next command.
func printNextStep(description, cmd string) {
	fmt.Println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}

// =============================================================================
// Build Summary
// =============================================================================

// printStats prints the mosaic statistics on one line.
func printStats(st pipeline.Stats) {
	fmt.Println("  " + statsLine(st))
}

func statsLine(st pipeline.Stats) string {
	var parts []string
	if st.Sources > 0 {
		parts = append(parts, StyleDim.Render(fmt.Sprintf("%d sources", st.Sources)))
	}
	parts = append(parts,
		StyleDim.Render(fmt.Sprintf("%d tiles", st.Candidates)),
		StyleDim.Render(fmt.Sprintf("%d cells", st.Cells)),
		StyleDim.Render(fmt.Sprintf("blend %g", st.BlendFactor)),
	)
	if st.Sources > 0 {
		parts = append(parts, styleCached.Render(fmt.Sprintf("%d %s", st.CacheHits, iconCached)))
	}
	return strings.Join(parts, StyleDim.Render(separator))
}
