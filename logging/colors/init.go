package colors

// enabled describes whether ANSI coloring is applied by Colorize.
var enabled bool

// init will ensure that ANSI coloring is enabled on Windows and Unix systems. Note that ANSI coloring is enabled by
// default on Unix system and Windows needs specific kernel calls for enablement
func init() {
	EnableColor()
}

// DisableColor turns off ANSI coloring, every ColorFunc then returns plain strings.
func DisableColor() {
	enabled = false
}
