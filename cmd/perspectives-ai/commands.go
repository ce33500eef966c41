package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/perspectives-ai/rag/config"
	"github.com/perspectives-ai/rag/internal/app"
	"github.com/perspectives-ai/rag/internal/db"
	"github.com/perspectives-ai/rag/internal/documents"
	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/ollama"
	"github.com/perspectives-ai/rag/internal/server"
	"github.com/perspectives-ai/rag/internal/tui"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openCorpus(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = c.cfg.Server.Addr
			}
			return server.New(a, os.Stderr).Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func (c *cli) ingestCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "Ingest documents or directories of documents",
		Long:  "Ingest PDF, EPUB, text and markdown files. Directories are walked recursively. Without arguments the configured documents directory is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				args = []string{c.cfg.Paths.DocumentsDir}
			}
			if c.cfg.Store.Catalog == config.BackendMemory {
				c.logger.Warn("store.catalog is memory: ingested documents are discarded when this command exits; serve, ask and chat load paths.documents_dir themselves")
			}

			var results []documents.FileResult
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("failed to stat %s: %w", path, err)
				}
				if info.IsDir() {
					rs, err := a.Processor.IngestDirectory(ctx, path, c.cfg.Processing.Workers, force)
					results = append(results, rs...)
					if err != nil {
						return err
					}
					continue
				}
				res, err := a.Processor.IngestFile(ctx, path, force)
				results = append(results, documents.FileResult{Path: path, Result: res, Err: err})
			}
			return printIngest(results)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest documents that are already processed")
	return cmd
}

func printIngest(results []documents.FileResult) error {
	var failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Printf("%s %s: %v\n", failStyle.Render("FAIL"), r.Path, r.Err)
		case r.Result.Skipped:
			fmt.Printf("%s %s (already processed)\n", skipStyle.Render("SKIP"), r.Path)
		default:
			fmt.Printf("%s %s: %d chunks in %s\n", okStyle.Render(" OK "), r.Path, r.Result.Chunks, r.Result.Space)
		}
	}
	fmt.Printf("\n%d files, %d failed\n", len(results), failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to ingest", failed, len(results))
	}
	return nil
}

func (c *cli) askCmd() *cobra.Command {
	var (
		maxResults int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openCorpus(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("max-results") {
				maxResults = c.cfg.Processing.TopK
			}
			answer, err := a.Pipeline.Ask(cmd.Context(), domain.Query{
				Text:       strings.Join(args, " "),
				MaxResults: maxResults,
				Timestamp:  time.Now(),
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}
			fmt.Println(tui.RenderAnswer(answer))
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 0, "Maximum number of sources (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the answer as JSON")
	return cmd
}

func (c *cli) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openCorpus(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return tui.Run(a.Pipeline, c.cfg.Processing.TopK, 2*c.cfg.Processing.StageTimeout)
		},
	}
}

func (c *cli) documentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List ingested documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openCorpus(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.Catalog.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "TITLE", "FILE", "SIZE", "PROCESSED", "UPLOADED")
			for _, d := range docs {
				t.Row(d.ID.String(), d.Title, d.Filename, fmt.Sprintf("%d", d.ByteSize),
					fmt.Sprintf("%t", d.Processed), d.UploadedAt.Format(time.DateTime))
			}
			fmt.Println(t.Render())
			fmt.Printf("%d documents\n", len(docs))
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <document-id>",
		Short: "Delete a document with its chunks and vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDocument(cmd.Context(), args[0], func(a *app.App, id uuid.UUID) error {
				if err := a.Processor.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", id)
				return nil
			})
		},
	}

	reembedCmd := &cobra.Command{
		Use:   "reembed <document-id>",
		Short: "Re-embed a document with the first available embedding tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDocument(cmd.Context(), args[0], func(a *app.App, id uuid.UUID) error {
				res, err := a.Processor.Reembed(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Printf("re-embedded %d chunks of %s into %s\n", res.Chunks, id, res.Space)
				return nil
			})
		},
	}

	cmd.AddCommand(rmCmd, reembedCmd)
	return cmd
}

func (c *cli) withDocument(ctx context.Context, arg string, fn func(*app.App, uuid.UUID) error) error {
	id, err := uuid.Parse(arg)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", arg, err)
	}
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	err = fn(a, id)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("document %s not found", id)
	}
	return err
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.New(cmd.Context(), c.cfg.Database.ConnectionString)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()

			if err := database.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Migrations completed successfully")
			return nil
		},
	}
}

func (c *cli) providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List embedding and generation tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			factory := app.NewFactory(cmd.Context())
			fmt.Println(headerStyle.Render("Registered providers"))
			fmt.Printf("  embedding:  %s\n", strings.Join(factory.EmbedderNames(), ", "))
			fmt.Printf("  generation: %s\n\n", strings.Join(factory.GeneratorNames(), ", "))

			fmt.Println(headerStyle.Render("Configured tiers (first usable wins)"))
			printTiers("embedding", c.cfg.Embeddings.Tiers)
			printTiers("generation", c.cfg.Generation.Tiers)

			client := ollama.NewClient(c.cfg.Ollama.BaseURL)
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			models, err := client.ListModels(ctx)
			fmt.Println()
			if err != nil {
				fmt.Println(skipStyle.Render("Ollama not reachable at " + c.cfg.Ollama.BaseURL))
				return nil
			}
			fmt.Println(headerStyle.Render("Ollama models"))
			for _, m := range models {
				fmt.Printf("  %s\n", m.Name)
			}
			return nil
		},
	}
}

func printTiers(kind string, tiers []config.ProviderSettings) {
	for i, t := range tiers {
		model := t.Model
		if model == "" {
			model = "default"
		}
		key := ""
		if t.Provider == "gemini" || t.Provider == "openai" {
			if t.APIKey == "" {
				key = failStyle.Render(" (no API key)")
			} else {
				key = okStyle.Render(" (key set)")
			}
		}
		fmt.Printf("  %s %d: %s/%s%s\n", kind, i+1, t.Provider, model, key)
	}
}

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write the configuration file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Report configuration problems",
			RunE: func(cmd *cobra.Command, args []string) error {
				warnings := c.cfg.Validate()
				if len(warnings) == 0 {
					fmt.Println(okStyle.Render("configuration OK"))
					return nil
				}
				for _, w := range warnings {
					fmt.Println(failStyle.Render("- " + w))
				}
				return fmt.Errorf("%d configuration warnings", len(warnings))
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write the current configuration to the config path",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := c.cfg.Save(c.configPath); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", c.configPath)
				return nil
			},
		},
	)
	return cmd
}
