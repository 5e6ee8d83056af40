// FILE: shogi/internal/console/display/colors.go
package display

// Palette holds terminal color codes; the zero value prints plain text
type Palette struct {
	Reset   string
	Red     string
	Green   string
	Yellow  string
	Blue    string
	Magenta string
	Cyan    string
}

// NewPalette returns ANSI colors when enabled, else a colorless palette
func NewPalette(enabled bool) Palette {
	if !enabled {
		return Palette{}
	}
	return Palette{
		Reset:   "\033[0m",
		Red:     "\033[31m",
		Green:   "\033[32m",
		Yellow:  "\033[33m",
		Blue:    "\033[34m",
		Magenta: "\033[35m",
		Cyan:    "\033[36m",
	}
}

// Prompt returns a colored prompt string
func (p Palette) Prompt(text string) string {
	return p.Yellow + text + p.Yellow + " > " + p.Reset
}

// Side colors sente blue and gote red
func (p Palette) Side(gote bool) string {
	if gote {
		return p.Red + "gote" + p.Reset
	}
	return p.Blue + "sente" + p.Reset
}
