package main

import (
	"flag"
	"io"
	"os"
	"text/tabwriter"

	httpx "github.com/hredge/portal/internal/http"
)

func runRoutes(_ *commandContext, args []string) error {
	fs := flag.NewFlagSet("routes", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return printRoutes(os.Stdout, httpx.DefaultRoutes().Specs())
}

// printRoutes writes one row per route. Routes without a nav entry show "-".
func printRoutes(w io.Writer, specs []httpx.RouteSpec) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "PATTERN\tVIEW\tREQUIRED ROLES\tNAV TITLE"); err != nil {
		return err
	}
	for _, s := range specs {
		title := s.Title
		if title == "" {
			title = "-"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\n", s.Pattern, s.View, s.Required, title); err != nil {
			return err
		}
	}
	return tw.Flush()
}
