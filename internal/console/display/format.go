// FILE: shogi/internal/console/display/format.go
package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"shogi/internal/server/usi"
)

// PrettyPrintJSON prints formatted JSON
func (p Palette) PrettyPrintJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%sError formatting JSON: %s%s\n", p.Red, err.Error(), p.Reset)
		return
	}
	fmt.Fprintln(w, string(data))
}

// Line renders one ranked search line: slot, depth, score and principal variation
func (p Palette) Line(w io.Writer, info usi.InfoLine) {
	score := fmt.Sprintf("%-10s", info.Score.String())
	switch {
	case info.Score.Value > 0:
		score = p.Green + score + p.Reset
	case info.Score.Value < 0:
		score = p.Red + score + p.Reset
	}
	fmt.Fprintf(w, "%s%2d%s  depth %-3d %s %s\n",
		p.Cyan, info.MultiPV, p.Reset, info.Depth, score, strings.Join(info.PV, " "))
}
