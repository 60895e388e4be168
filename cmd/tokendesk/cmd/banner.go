package cmd

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
)

func printBanner(w io.Writer) {
	fig := figure.NewFigure("tokendesk", "cybermedium", true)
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m\n", fig.String())
	fmt.Fprintf(w, "\x1b[32m  Token Management Console - Version %s\x1b[0m\n\n", Version)
}
