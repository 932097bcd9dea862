// Command gendocs writes the mhk reference documentation: one markdown page
// and one man page per command, shell completions, and a page for the
// commands of the session console.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/bolasblack/multihack/internal/cli"
	"github.com/bolasblack/multihack/internal/util"
)

// formats maps a format name to its generator. Output paths are relative
// to the output directory.
var formats = map[string]func(env *util.Env, root *cobra.Command) error{
	"markdown":    genMarkdown,
	"man":         genMan,
	"completions": genCompletions,
	"console":     genConsole,
}

var formatOrder = []string{"markdown", "man", "completions", "console"}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: gendocs <%s|all> [outdir]\n", strings.Join(formatOrder, "|"))
		os.Exit(1)
	}
	outDir := "out"
	if len(os.Args) > 2 {
		outDir = os.Args[2]
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	env := util.NewEnv(afero.NewBasePathFs(afero.NewOsFs(), outDir))
	if err := generate(env, cli.GetRootCmd(), os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	util.ProgressDone(os.Stdout, "Generated %s documentation in %s/\n", os.Args[1], outDir)
}

func generate(env *util.Env, root *cobra.Command, format string) error {
	root.DisableAutoGenTag = true

	if format == "all" {
		for _, name := range formatOrder {
			if err := formats[name](env, root); err != nil {
				return err
			}
		}
		return nil
	}
	gen, ok := formats[format]
	if !ok {
		return fmt.Errorf("unknown format %q", format)
	}
	return gen(env, root)
}

// visible walks the command tree, skipping hidden and help commands.
func visible(cmd *cobra.Command, fn func(*cobra.Command) error) error {
	if !cmd.IsAvailableCommand() && cmd.HasParent() {
		return nil
	}
	if err := fn(cmd); err != nil {
		return err
	}
	for _, c := range cmd.Commands() {
		if err := visible(c, fn); err != nil {
			return err
		}
	}
	return nil
}

func pageName(cmd *cobra.Command) string {
	return strings.ReplaceAll(cmd.CommandPath(), " ", "_")
}

func writeFile(env *util.Env, name string, gen func(io.Writer) error) error {
	if err := env.Fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := gen(&buf); err != nil {
		return fmt.Errorf("failed to generate %s: %w", name, err)
	}
	if err := afero.WriteFile(env.Fs, name, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func genMarkdown(env *util.Env, root *cobra.Command) error {
	link := func(name string) string {
		return "./" + strings.TrimSuffix(name, path.Ext(name)) + ".md"
	}
	return visible(root, func(cmd *cobra.Command) error {
		name := pageName(cmd)
		return writeFile(env, path.Join("docs", "commands", name+".md"), func(w io.Writer) error {
			_, _ = fmt.Fprintf(w, "---\ntitle: %q\n---\n\n", strings.ReplaceAll(name, "_", " "))
			return doc.GenMarkdownCustom(cmd, w, link)
		})
	})
}

func genMan(env *util.Env, root *cobra.Command) error {
	return visible(root, func(cmd *cobra.Command) error {
		header := &doc.GenManHeader{
			Title:   strings.ToUpper(pageName(cmd)),
			Section: "1",
			Source:  "Multihack " + cli.Version,
			Manual:  "Multihack Manual",
		}
		return writeFile(env, path.Join("man", pageName(cmd)+".1"), func(w io.Writer) error {
			return doc.GenMan(cmd, header, w)
		})
	})
}

func genCompletions(env *util.Env, root *cobra.Command) error {
	shells := []struct {
		ext string
		gen func(io.Writer) error
	}{
		{"bash", func(w io.Writer) error { return root.GenBashCompletionV2(w, true) }},
		{"zsh", root.GenZshCompletion},
		{"fish", func(w io.Writer) error { return root.GenFishCompletion(w, true) }},
	}
	for _, sh := range shells {
		if err := writeFile(env, path.Join("completions", root.Name()+"."+sh.ext), sh.gen); err != nil {
			return err
		}
	}
	return nil
}

// genConsole documents the commands typed at the "mhk start" prompt, which
// cobra knows nothing about.
func genConsole(env *util.Env, root *cobra.Command) error {
	return writeFile(env, path.Join("docs", "console.md"), func(w io.Writer) error {
		_, _ = fmt.Fprintf(w, "---\ntitle: \"%s console\"\n---\n\n", root.Name())
		_, _ = fmt.Fprintf(w, "## Session console\n\n")
		_, _ = fmt.Fprintf(w, "When `%s start` runs in a terminal it reads one command per line:\n\n", root.Name())
		_, _ = fmt.Fprintln(w, "| Command | Description |")
		_, _ = fmt.Fprintln(w, "|---------|-------------|")
		for _, c := range cli.ConsoleCommands() {
			_, _ = fmt.Fprintf(w, "| `%s` | %s |\n", c.Usage(), c.Summary)
		}
		return nil
	})
}
