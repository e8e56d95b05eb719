package main

import (
	"fmt"
	"os"
	"strings"
)

const usage = `diagrama - diagram editor core

Usage:
  diagrama serve [--file path]                  serve the open diagram over MCP stdio with autosave
  diagrama render <file> --format f [--out p]   export png, svg, dot, mermaid or outline
                 [--container id] [--all] [--scale n]
  diagrama validate <file>                      check a diagram file against the document schema
  diagrama query <file> <jq program>            run a jq program over a diagram file
  diagrama select <file> <cel predicate>        list the ids of matching items
  diagrama outline <file>                       print the container hierarchy
  diagrama history [document-id]                list library documents or one document's revisions
  diagrama version                              print the version

Configuration: env DIAGRAMA_* > ~/.diagrama/settings.json > defaults.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		runServe(args)
	case "render":
		runRender(args)
	case "validate":
		runValidate(args)
	case "query":
		runQuery(args)
	case "select":
		runSelect(args)
	case "outline":
		runOutline(args)
	case "history":
		runHistory(args)
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// splitLeading separates leading positional arguments from flags so that
// both "render file --format png" and "render --format png file" parse.
func splitLeading(args []string) (positional, rest []string) {
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional = append(positional, args[0])
		args = args[1:]
	}
	return positional, args
}
