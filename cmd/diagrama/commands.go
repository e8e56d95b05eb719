package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rendis/diagrama/internal/codec"
	"github.com/rendis/diagrama/internal/diagram"
	"github.com/rendis/diagrama/internal/logging"
	"github.com/rendis/diagrama/internal/script"
	"github.com/rendis/diagrama/internal/session"
	"github.com/rendis/diagrama/internal/store"
	"github.com/rendis/diagrama/internal/validation"
	"github.com/rendis/diagrama/pkg/schema"
)

// openFile loads a diagram file into a fresh session, validating it first.
func openFile(ctx context.Context, path string, cfg Config, logger *slog.Logger) *session.DocumentSession {
	v, err := validation.NewDocumentValidator()
	if err != nil {
		fatalf("document schema: %v", err)
	}
	ds, err := session.New(
		session.WithConfig(cfg.sessionConfig()),
		session.WithLogger(logger),
		session.WithValidator(v),
	)
	if err != nil {
		fatalf("create session: %v", err)
	}
	if err := ds.Open(ctx, path); err != nil {
		fatalf("%v", err)
	}
	return ds
}

func runRender(args []string) {
	positional, rest := splitLeading(args)
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	format := fs.String("format", "png", "output format: png, svg, dot, mermaid, outline")
	out := fs.String("out", "", "output path (default: stdout)")
	container := fs.String("container", "", "render only the children of this container")
	all := fs.Bool("all", false, "include every item regardless of the entered container")
	scale := fs.Float64("scale", 1, "png scale factor")
	if err := fs.Parse(rest); err != nil {
		os.Exit(1)
	}
	positional = append(positional, fs.Args()...)
	if len(positional) != 1 {
		fatalf("render needs exactly one diagram file")
	}
	path := positional[0]

	cfg := loadConfig()
	logger := logging.New(os.Stderr, cfg.LogLevel)
	ctx := logging.WithAction(context.Background(), "render")

	data, err := store.ReadDocumentFile(path)
	if err != nil {
		fatalf("%v", err)
	}
	v, err := validation.NewDocumentValidator()
	if err != nil {
		fatalf("document schema: %v", err)
	}
	if err := v.Validate(data); err != nil {
		fatalf("%s: %v", path, err)
	}
	doc, err := codec.Decode(data)
	if err != nil {
		fatalf("%s: %v", path, err)
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	model, err := diagram.FromDocument(ctx, doc, *container, diagram.BuildOptions{
		Title:   title,
		All:     *all,
		Scripts: script.NewInterpreter(nil, logger),
		Logger:  logger,
	})
	if err != nil {
		fatalf("%v", err)
	}

	w, closeOut := outputWriter(*out)
	defer closeOut()

	switch *format {
	case "outline":
		_, err = io.WriteString(w, diagram.RenderOutline(model))
	case "mermaid":
		_, err = io.WriteString(w, diagram.RenderMermaid(model))
	case diagram.FormatSVG, diagram.FormatDOT:
		err = diagram.RenderGraphviz(ctx, model, *format, w)
	case diagram.FormatPNG:
		err = diagram.RenderPNG(ctx, model, diagram.PNGOptions{Scale: *scale, Logger: logger}, w)
	default:
		fatalf("unsupported format %q (png, svg, dot, mermaid, outline)", *format)
	}
	if err != nil {
		fatalf("render: %v", err)
	}
	if *out != "" {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", *out)
	}
}

// outputWriter returns a buffered writer on path, or stdout for "".
func outputWriter(path string) (io.Writer, func()) {
	f := os.Stdout
	if path != "" {
		var err error
		f, err = os.Create(path)
		if err != nil {
			fatalf("cannot create %s: %v", path, err)
		}
	}
	bw := bufio.NewWriter(f)
	return bw, func() {
		if err := bw.Flush(); err != nil {
			fatalf("write %s: %v", path, err)
		}
		if f != os.Stdout {
			if err := f.Close(); err != nil {
				fatalf("close %s: %v", path, err)
			}
		}
	}
}

func runValidate(args []string) {
	if len(args) != 1 {
		fatalf("validate needs exactly one diagram file")
	}
	data, err := store.ReadDocumentFile(args[0])
	if err != nil {
		fatalf("%v", err)
	}
	v, err := validation.NewDocumentValidator()
	if err != nil {
		fatalf("document schema: %v", err)
	}
	res := v.Check(data)
	for _, issue := range res.Issues() {
		fmt.Println(issue)
	}
	if !res.Valid() {
		os.Exit(1)
	}
	fmt.Printf("%s: valid (%d warnings)\n", args[0], len(res.Warnings))
}

func runQuery(args []string) {
	if len(args) != 2 {
		fatalf("usage: diagrama query <file> <jq program>")
	}
	cfg := loadConfig()
	logger := logging.New(os.Stderr, cfg.LogLevel)
	ctx := context.Background()
	ds := openFile(ctx, args[0], cfg, logger)

	results, err := ds.Query(ctx, args[1])
	if err != nil {
		fatalf("%v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			fatalf("encode result: %v", err)
		}
	}
}

func runSelect(args []string) {
	if len(args) != 2 {
		fatalf("usage: diagrama select <file> <cel predicate>")
	}
	cfg := loadConfig()
	logger := logging.New(os.Stderr, cfg.LogLevel)
	ctx := context.Background()
	ds := openFile(ctx, args[0], cfg, logger)

	ids, err := ds.Select(ctx, args[1])
	if err != nil {
		fatalf("%v", err)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func runOutline(args []string) {
	if len(args) != 1 {
		fatalf("outline needs exactly one diagram file")
	}
	cfg := loadConfig()
	logger := logging.New(os.Stderr, cfg.LogLevel)
	ctx := context.Background()
	ds := openFile(ctx, args[0], cfg, logger)

	model := diagram.Build(ctx, ds.Store(), diagram.BuildOptions{
		Title:    ds.Name(),
		All:      true,
		Resolver: ds.Resolver(),
		Logger:   logger,
	})
	fmt.Print(diagram.RenderOutline(model))
}

func runHistory(args []string) {
	if len(args) > 1 {
		fatalf("usage: diagrama history [document-id]")
	}
	cfg := loadConfig()
	ctx := context.Background()
	lib, err := openLibrary(ctx, cfg)
	if err != nil {
		fatalf("%v", err)
	}
	defer lib.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if len(args) == 0 {
		docs, err := lib.ListDocuments(ctx, store.DocumentFilter{})
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Fprintln(tw, "ID\tNAME\tITEMS\tUPDATED")
		for _, d := range docs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, d.Name, d.ItemCount, d.UpdatedAt.Local().Format(time.DateTime))
		}
		return
	}

	revs, err := lib.ListRevisions(ctx, store.RevisionFilter{DocumentID: args[0]})
	if err != nil {
		fatalf("%v", err)
	}
	if len(revs) == 0 {
		if _, err := lib.GetDocument(ctx, args[0]); schema.HasCode(err, schema.ErrCodeNotFound) {
			fatalf("no library document %s", args[0])
		}
	}
	fmt.Fprintln(tw, "SEQ\tKIND\tCREATED\tDESCRIPTION")
	for _, r := range revs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Sequence, r.Kind, r.CreatedAt.Local().Format(time.DateTime), r.Description)
	}
}
