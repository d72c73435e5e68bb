package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/halvar/mdn/internal"
	"github.com/halvar/mdn/internal/apperr"
	"github.com/halvar/mdn/internal/index"
	"github.com/halvar/mdn/internal/mcpserver"
	"github.com/halvar/mdn/internal/noteservice"
	"github.com/halvar/mdn/internal/query"
	"github.com/halvar/mdn/internal/storage"
	pkgconfig "github.com/halvar/mdn/pkg/config"
)

func main() {
	cmd := &cli.Command{
		Name:  "mdn",
		Usage: "Personal Markdown notes with tags, groups and fuzzy lookup",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "~/.mdn.yaml",
				Sources:     cli.EnvVars("MDN_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			lsCommand(),
			lsgCommand(),
			lstCommand(),
			catCommand(),
			fdCommand(),
			newCommand(),
			editCommand(),
			showCommand(),
			rmCommand(),
			aaCommand(),
			pmdCommand(),
			regenerateCommand(),
			serveCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mdn:", userMessage(err))
		os.Exit(1)
	}
}

// userMessage turns application errors into something worth printing.
func userMessage(err error) string {
	var invalid *apperr.InvalidFilterError
	var malformed *apperr.MalformedNoteError
	var corrupt *apperr.CorruptIndexError

	switch {
	case errors.As(err, &invalid):
		return invalid.Error()
	case errors.As(err, &malformed):
		return malformed.Error()
	case errors.As(err, &corrupt):
		return "index is corrupt, run `mdn regenerate` to rebuild it"
	case errors.Is(err, apperr.ErrNotFound):
		return err.Error()
	case errors.Is(err, apperr.ErrAlreadyExists):
		return err.Error()
	default:
		return err.Error()
	}
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()

	path := cmd.String("config")
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home + "/.mdn.yaml"
		}
	}
	if err := pkgconfig.LoadOptional(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// openService builds the storage, store and note service for one CLI
// invocation. The returned closer releases the index store.
func openService(cmd *cli.Command) (*noteservice.Service, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	vault, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, nil, err
	}
	store, err := index.Open(cfg.IndexPath())
	if err != nil {
		return nil, nil, err
	}

	svc, err := noteservice.Open(vault, store, logger, noteservice.Options{
		EditorCmd:  cfg.Editor.Cmd,
		BrowserCmd: cfg.Browser.Cmd,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return svc, func() { store.Close() }, nil
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "group",
			Aliases: []string{"g"},
			Usage:   "Group path or prefix, e.g. work or sw.golang",
		},
		&cli.StringFlag{
			Name:    "tags",
			Aliases: []string{"t"},
			Usage:   "Tag formula, e.g. '@foo & -@bar'",
		},
	}
}

func filterFromFlags(cmd *cli.Command) query.Filter {
	return query.Filter{
		Group: cmd.String("group"),
		Tags:  cmd.String("tags"),
	}
}

func lsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List notes",
		ArgsUsage: "[title pattern]",
		Flags:     filterFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			f := filterFromFlags(cmd)
			f.Title = cmd.Args().First()

			rows, err := svc.List(f)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			for _, row := range rows {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
					row.ID, row.Title, row.Group, row.ModifiedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func lsgCommand() *cli.Command {
	return &cli.Command{
		Name:      "lsg",
		Usage:     "List groups",
		ArgsUsage: "[pattern]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			for _, g := range svc.Groups(cmd.Args().First()) {
				fmt.Println(g)
			}
			return nil
		},
	}
}

func lstCommand() *cli.Command {
	return &cli.Command{
		Name:      "lst",
		Usage:     "List tags",
		ArgsUsage: "[pattern]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			for _, t := range svc.Tags(cmd.Args().First()) {
				fmt.Println(t)
			}
			return nil
		},
	}
}

func catCommand() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "Print a note's source with asset links made absolute",
		ArgsUsage: "<id | title pattern | _c/_e/_s>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "no-header",
				Aliases: []string{"n"},
				Usage:   "Strip the YAML front matter",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			id, err := svc.Resolve(firstOr(cmd, "_s"))
			if err != nil {
				return err
			}
			content, err := svc.Cat(id, cmd.Bool("no-header"))
			if err != nil {
				return err
			}
			fmt.Println(content)
			return nil
		},
	}
}

func fdCommand() *cli.Command {
	return &cli.Command{
		Name:      "fd",
		Usage:     "Search note contents",
		ArgsUsage: "<pattern>",
		Flags: append(filterFlags(),
			&cli.BoolFlag{
				Name:    "regex",
				Aliases: []string{"r"},
				Usage:   "Treat the pattern as a regular expression",
			},
			&cli.BoolFlag{
				Name:    "no-wildcard",
				Aliases: []string{"n"},
				Usage:   "Match the pattern literally (no * expansion)",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			pattern := cmd.Args().First()
			if pattern == "" {
				return fmt.Errorf("fd: a search pattern is required")
			}

			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			mode := query.PatternWildcard
			switch {
			case cmd.Bool("regex"):
				mode = query.PatternRegex
			case cmd.Bool("no-wildcard"):
				mode = query.PatternLiteral
			}

			hits, err := svc.SearchContent(ctx, pattern, mode, filterFromFlags(cmd))
			if err != nil {
				return err
			}
			for _, hit := range hits {
				fmt.Printf("%d  %s\n", hit.ID, hit.Title)
				for _, sn := range hit.Snippets {
					fmt.Printf("    %s\n", sn)
				}
			}
			return nil
		},
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "new",
		Usage: "Create a note and open it in the editor",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "template",
				Aliases: []string{"t"},
				Usage:   "Path to a template file for the new note",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			var template []byte
			if path := cmd.String("template"); path != "" {
				template, err = os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read template: %w", err)
				}
			}

			id, err := svc.New(template)
			if err != nil {
				return err
			}
			fmt.Printf("created note %d\n", id)

			if err := svc.Edit(ctx, id); err != nil {
				var malformed *apperr.MalformedNoteError
				if errors.As(err, &malformed) {
					fmt.Fprintln(os.Stderr, "mdn:", malformed.Error())
					return nil
				}
				return err
			}
			return nil
		},
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Open a note in the editor (defaults to the last created)",
		ArgsUsage: "[id | title pattern | _c/_e/_s]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			id, err := svc.Resolve(firstOr(cmd, "_c"))
			if err != nil {
				return err
			}
			if err := svc.Edit(ctx, id); err != nil {
				var malformed *apperr.MalformedNoteError
				if errors.As(err, &malformed) {
					fmt.Fprintln(os.Stderr, "mdn:", malformed.Error())
					return nil
				}
				return err
			}
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Render notes to HTML and open them in the browser",
		ArgsUsage: "[tokens... (defaults to the last edited)]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			tokens := cmd.Args().Slice()
			if len(tokens) == 0 {
				tokens = []string{"_e"}
			}
			for _, token := range tokens {
				id, err := svc.Resolve(token)
				if err != nil {
					return err
				}
				if err := svc.Show(id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func rmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Delete notes",
		ArgsUsage: "<id | title pattern> ...",
		Flags: append(filterFlags(),
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Skip the confirmation prompt",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return fmt.Errorf("rm: at least one note must be named")
			}

			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			ids, err := svc.ResolveMany(cmd.Args().Slice(), filterFromFlags(cmd))
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("rm: nothing matched: %w", apperr.ErrNotFound)
			}

			if len(ids) > 1 && !cmd.Bool("force") {
				for _, id := range ids {
					entry, err := svc.Entry(id)
					if err != nil {
						return err
					}
					fmt.Printf("%d  %s  (%s)\n", entry.ID, entry.Title, entry.Group)
				}
				if !confirm(fmt.Sprintf("delete these %d notes?", len(ids))) {
					return nil
				}
			}

			if err := svc.Remove(ids); err != nil {
				return err
			}
			fmt.Printf("deleted %d note(s)\n", len(ids))
			return nil
		},
	}
}

func aaCommand() *cli.Command {
	return &cli.Command{
		Name:      "aa",
		Usage:     "Add an asset file to the vault",
		ArgsUsage: "<source file> [name]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			src := cmd.Args().First()
			if src == "" {
				return fmt.Errorf("aa: a source file is required")
			}
			name := cmd.Args().Get(1)
			if name == "" {
				name = filepath.Base(src)
			}

			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			if err := svc.AddAsset(src, name); err != nil {
				return err
			}
			fmt.Printf("added asset %s\n", name)
			return nil
		},
	}
}

func pmdCommand() *cli.Command {
	return &cli.Command{
		Name:      "pmd",
		Usage:     "Print the path of a note's markdown file",
		ArgsUsage: "<id | title pattern | _c/_e/_s>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			id, err := svc.Resolve(firstOr(cmd, "_e"))
			if err != nil {
				return err
			}
			fmt.Println(svc.Vault().NotePath(id))
			return nil
		},
	}
}

func regenerateCommand() *cli.Command {
	return &cli.Command{
		Name:  "regenerate",
		Usage: "Rebuild the index from the vault, recovering from corruption",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var corrupt *apperr.CorruptIndexError
			svc, closer, err := openService(cmd)
			if errors.As(err, &corrupt) {
				// The database itself is unreadable. Drop it and start
				// over; the vault remains the source of truth.
				fmt.Fprintln(os.Stderr, "mdn: index is corrupt, rebuilding from scratch")
				for _, suffix := range []string{"", "-wal", "-shm"} {
					_ = os.Remove(cfg.IndexPath() + suffix)
				}
				svc, closer, err = openService(cmd)
			}
			if err != nil {
				return err
			}
			defer closer()

			issues, err := svc.Regenerate()
			if err != nil {
				return err
			}
			for _, issue := range issues {
				fmt.Fprintf(os.Stderr, "mdn: skipped note %d: %s\n", issue.ID, issue.Reason)
			}
			fmt.Println("index regenerated")
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web server with live index updates",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return internal.Run(ctx, internal.WithConfig(cfg))
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closer, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closer()

			return mcpserver.New(svc).ServeStdio()
		},
	}
}

func firstOr(cmd *cli.Command, fallback string) string {
	if token := cmd.Args().First(); token != "" {
		return token
	}
	return fallback
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
