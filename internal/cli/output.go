package cli

import (
	"fmt"
	"io"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// printer writes user-facing output honoring --quiet and --no-color.
type printer struct {
	out     io.Writer
	errOut  io.Writer
	quiet   bool
	noColor bool
}

func (p printer) info(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p printer) success(format string, args ...interface{}) {
	p.mark(colorGreen, "✓", format, args...)
}

func (p printer) warning(format string, args ...interface{}) {
	p.mark(colorYellow, "⚠", format, args...)
}

func (p printer) failure(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if p.noColor {
		fmt.Fprintf(p.errOut, "✗ %s\n", msg)
		return
	}
	fmt.Fprintf(p.errOut, "%s✗%s %s\n", colorRed, colorReset, msg)
}

func (p printer) mark(color, sym, format string, args ...interface{}) {
	if p.quiet {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if p.noColor {
		fmt.Fprintf(p.out, "%s %s\n", sym, msg)
		return
	}
	fmt.Fprintf(p.out, "%s%s%s %s\n", color, sym, colorReset, msg)
}

func (p printer) dim(s string) string {
	if p.noColor {
		return s
	}
	return colorGray + s + colorReset
}
