package kanban

import "fmt"

// Color is a stage color token. The set is closed; rendering them is the
// presentation layer's problem.
type Color string

const (
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorPurple Color = "purple"
	ColorGray   Color = "gray"
	ColorRed    Color = "red"
)

var colors = map[Color]struct{}{
	ColorBlue:   {},
	ColorYellow: {},
	ColorGreen:  {},
	ColorPurple: {},
	ColorGray:   {},
	ColorRed:    {},
}

func ParseColor(value string) (Color, error) {
	color := Color(value)
	if _, ok := colors[color]; !ok {
		return "", fmt.Errorf("unknown stage color %q", value)
	}
	return color, nil
}
