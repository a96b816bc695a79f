package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hyperjump/retriever/internal/cli"
	"github.com/hyperjump/retriever/internal/client"
	"github.com/hyperjump/retriever/internal/extract"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/pkg/utils"
)

// newAPIClient reads .env when present and builds a client from the environment.
func newAPIClient() (*client.Client, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	opts := []client.Option{}
	if debugFlag {
		logger, err := utils.NewLogger(true, serviceName)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithLogger(logger))
	}
	return client.FromEnv(opts...)
}

type ingestOptions struct {
	Files  []string
	Title  string
	Text   string
	Meta   []string
	State  string
	Full   bool
	Output string
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Upload documents to a project",
		Long: `Upload documents to the project named by RETRIEVER_PROJECT_ID.

Either pass --text (with an optional --title) for one inline document, or one or
more --file paths. Directories are walked for supported files (txt, md, rst, pdf,
docx, odt, rtf, xlsx). With --state, sources already uploaded are skipped.`,
		Example: `  retriever ingest --title Guide --text "Install Python via python.org" --meta category=docs
  retriever ingest --file ./docs --state .retriever-uploaded.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(opts.Output)
			if err != nil {
				return err
			}
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			if len(opts.Files) == 0 {
				return ingestInline(cmd.Context(), c, opts, cmd.OutOrStdout(), format)
			}
			return ingestFiles(cmd.Context(), c, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringArrayVar(&opts.Files, "file", nil, "file or directory to upload (repeatable)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "document title")
	cmd.Flags().StringVar(&opts.Text, "text", "", "document text")
	cmd.Flags().StringArrayVar(&opts.Meta, "meta", nil, "metadata key=value (repeatable)")
	cmd.Flags().StringVar(&opts.State, "state", "", "tracking file of uploaded sources")
	cmd.Flags().BoolVar(&opts.Full, "full", false, "ignore the tracking file and upload everything")
	cmd.Flags().StringVar(&opts.Output, "output", "text", "output format: text or json")
	cmd.MarkFlagsMutuallyExclusive("file", "text")
	return cmd
}

func ingestInline(ctx context.Context, c *client.Client, opts ingestOptions, w io.Writer, format cli.OutputFormat) error {
	if strings.TrimSpace(opts.Text) == "" {
		return errors.New("--text or --file is required")
	}
	meta, err := cli.ParseMetadata(opts.Meta)
	if err != nil {
		return err
	}
	doc, err := c.Ingest(ctx, &models.IngestRequest{Title: opts.Title, Text: opts.Text, Metadata: meta})
	if err != nil {
		return err
	}
	return cli.WriteDocument(w, doc, format)
}

func ingestFiles(ctx context.Context, c *client.Client, opts ingestOptions, out, errOut io.Writer) error {
	meta, err := cli.ParseMetadata(opts.Meta)
	if err != nil {
		return err
	}
	paths, err := collectFiles(opts.Files)
	if err != nil {
		return err
	}

	var tracker *client.Tracker
	if opts.State != "" {
		if tracker, err = client.LoadTracker(opts.State); err != nil {
			return err
		}
		if opts.Full {
			tracker.Reset()
		}
	}

	extractor := extract.NewExtractor()
	uploaded, skipped, failed := 0, 0, 0
	for _, path := range paths {
		if tracker != nil && tracker.Has(path) {
			skipped++
			continue
		}
		req, err := extractor.Load(path)
		if err != nil {
			fmt.Fprintf(errOut, "Skipped %s: %v\n", path, err)
			failed++
			continue
		}
		for k, v := range meta {
			req.Metadata[k] = v
		}
		if opts.Title != "" && len(paths) == 1 {
			req.Title = opts.Title
		}

		doc, err := c.Ingest(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(errOut, "Failed %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "Uploaded %s -> %s\n", path, doc.ID)
		uploaded++
		if tracker != nil {
			tracker.Add(path, doc.ID)
			if err := tracker.Save(); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(out, "%d uploaded, %d already uploaded, %d failed\n", uploaded, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(paths))
	}
	return nil
}

// collectFiles expands directories into their supported files and returns absolute paths
// in sorted order without duplicates. Explicit file arguments are kept whatever their extension.
func collectFiles(args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(abs)
			continue
		}
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != abs && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if extract.Supported(filepath.Ext(p)) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", arg, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

func newQueryCmd() *cobra.Command {
	var (
		topK    int
		vectorK int
		output  string
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a hybrid query against a project",
		Long: `Run a hybrid query. The query is all arguments joined by spaces, so
multi-word queries work with or without quotes.`,
		Example: `  retriever query python install --top-k 3
  retriever query "python install" --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			query := buildQuery(args)
			if query == "" {
				return errors.New("query must not be empty")
			}
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			results, err := c.Query(cmd.Context(), &models.QueryRequest{Query: query, TopK: topK, VectorK: vectorK})
			if err != nil {
				return err
			}
			return cli.WriteResults(cmd.OutOrStdout(), results, format)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of documents to return (0 = server default)")
	cmd.Flags().IntVar(&vectorK, "vector-k", 0, "vector candidates to consider (0 = server default)")
	cmd.Flags().StringVar(&output, "output", "text", "output format: text or json")
	return cmd
}

func buildQuery(args []string) string {
	return strings.Join(strings.Fields(strings.Join(args, " ")), " ")
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Document deleted: %s\n", args[0])
			return nil
		},
	}
}
