package theme

import (
	"github.com/pterm/pterm"
)

// Theme defines the colour scheme and styling for the application
type Theme struct {
	// Log level colours
	Debug *pterm.Style
	Info  *pterm.Style
	Warn  *pterm.Style
	Error *pterm.Style
	Fatal *pterm.Style

	// Component colours
	Success   *pterm.Style
	Highlight *pterm.Style
	Muted     *pterm.Style
	Accent    *pterm.Style

	// Gateway-domain colours
	Counts        *pterm.Style
	Numbers       *pterm.Style
	Server        *pterm.Style
	Tool          *pterm.Style
	CircuitClosed *pterm.Style
	CircuitOpen   *pterm.Style
	CircuitHalf   *pterm.Style
	CacheHit      *pterm.Style
	CacheMiss     *pterm.Style
	RateLimited   *pterm.Style

	// Functional colours
	Primary   pterm.Color
	Secondary pterm.Color
	Danger    pterm.Color
	Warning   pterm.Color
	Good      pterm.Color
}

// Default returns the default application theme
func Default() *Theme {
	return &Theme{
		Debug: pterm.NewStyle(pterm.FgLightBlue),
		Info:  pterm.NewStyle(pterm.FgGreen),
		Warn:  pterm.NewStyle(pterm.FgYellow, pterm.Bold),
		Error: pterm.NewStyle(pterm.FgRed, pterm.Bold),
		Fatal: pterm.NewStyle(pterm.FgWhite, pterm.BgRed, pterm.Bold),

		Success:   pterm.NewStyle(pterm.FgGreen, pterm.Bold),
		Highlight: pterm.NewStyle(pterm.FgCyan, pterm.Bold),
		Muted:     pterm.NewStyle(pterm.FgGray),
		Accent:    pterm.NewStyle(pterm.FgMagenta),

		Counts:        pterm.NewStyle(pterm.FgCyan, pterm.Bold),
		Numbers:       pterm.NewStyle(pterm.FgCyan),
		Server:        pterm.NewStyle(pterm.FgBlue, pterm.Bold),
		Tool:          pterm.NewStyle(pterm.FgMagenta),
		CircuitClosed: pterm.NewStyle(pterm.FgGreen, pterm.Bold),
		CircuitOpen:   pterm.NewStyle(pterm.FgRed, pterm.Bold),
		CircuitHalf:   pterm.NewStyle(pterm.FgYellow, pterm.Bold),
		CacheHit:      pterm.NewStyle(pterm.FgGreen),
		CacheMiss:     pterm.NewStyle(pterm.FgGray),
		RateLimited:   pterm.NewStyle(pterm.FgYellow, pterm.Bold),

		Primary:   pterm.FgBlue,
		Secondary: pterm.FgCyan,
		Danger:    pterm.FgRed,
		Warning:   pterm.FgYellow,
		Good:      pterm.FgGreen,
	}
}

// Dark returns a dark theme variant
func Dark() *Theme {
	t := Default()
	t.Debug = pterm.NewStyle(pterm.FgLightBlue)
	t.Info = pterm.NewStyle(pterm.FgLightGreen)
	t.Warn = pterm.NewStyle(pterm.FgLightYellow, pterm.Bold)
	t.Error = pterm.NewStyle(pterm.FgLightRed, pterm.Bold)
	t.Success = pterm.NewStyle(pterm.FgLightGreen, pterm.Bold)
	t.Highlight = pterm.NewStyle(pterm.FgLightCyan, pterm.Bold)
	t.Accent = pterm.NewStyle(pterm.FgLightMagenta)
	t.Primary = pterm.FgLightBlue
	t.Secondary = pterm.FgLightCyan
	t.Danger = pterm.FgLightRed
	t.Warning = pterm.FgLightYellow
	t.Good = pterm.FgLightGreen
	return t
}

// Light returns a light theme variant
func Light() *Theme {
	t := Default()
	t.Debug = pterm.NewStyle(pterm.FgBlue)
	t.Info = pterm.NewStyle(pterm.FgBlack)
	t.Warn = pterm.NewStyle(pterm.FgRed, pterm.Bold)
	t.Highlight = pterm.NewStyle(pterm.FgBlue, pterm.Bold)
	t.Warning = pterm.FgRed
	return t
}

// GetTheme returns the theme with the given name ("dark" or "light"), or the
// default theme for any other name
func GetTheme(name string) *Theme {
	switch name {
	case "dark":
		return Dark()
	case "light":
		return Light()
	default:
		return Default()
	}
}

// ColourSplash colours the startup banner.
func ColourSplash(message ...any) string {
	return pterm.LightGreen(message...)
}

// ColourVersion colours version numbers for the startup banner.
func ColourVersion(message ...any) string {
	return pterm.LightYellow(message...)
}

// StyleUrl colours URLs and hyperlinks.
func StyleUrl(message ...any) string {
	return pterm.LightBlue(message...)
}

// Hyperlink creates a terminal hyperlink escape sequence.
func Hyperlink(uri string, text string) string {
	return "\x1b]8;;" + uri + "\x07" + text + "\x1b]8;;\x07" + "[0m"
}
