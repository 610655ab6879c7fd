package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	cobraDoc "github.com/spf13/cobra/doc"

	"github.com/basedagent/basedagent/pkg/config"
	"github.com/basedagent/basedagent/pkg/providers"
	"github.com/basedagent/basedagent/pkg/tools"
	"github.com/basedagent/basedagent/pkg/wallet"
)

// Generated reference roots, relative to the docs directory. Directories are
// owned wholesale: stale files in them are removed on generate.
var docRoots = []string{
	filepath.Join("reference", "cli"),
	filepath.Join("reference", "man"),
	filepath.Join("reference", "config.md"),
	filepath.Join("reference", "providers.md"),
	filepath.Join("reference", "tools.md"),
}

func newDocsCommand(rootFactory func() *cobra.Command) *cobra.Command {
	var (
		outputDir string
		checkOnly bool
	)

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Regenerate the CLI, config, provider, and tool references",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outputDir) == "" {
				return fmt.Errorf("--output must not be empty")
			}
			return generateDocumentation(rootFactory, outputDir, checkOnly)
		},
	}
	gen.Flags().StringVar(&outputDir, "output", "docs", "Docs directory root")
	gen.Flags().BoolVar(&checkOnly, "check", false, "Fail if generated docs are out of date")

	docs := &cobra.Command{
		Use:    "docs",
		Short:  "Internal docs maintenance commands",
		Hidden: true,
	}
	docs.AddCommand(gen)
	return docs
}

func generateDocumentation(rootFactory func() *cobra.Command, outputDir string, checkOnly bool) error {
	want, err := renderDocs(rootFactory())
	if err != nil {
		return err
	}
	if checkOnly {
		return checkDocs(want, outputDir)
	}

	for _, root := range docRoots {
		if err := os.RemoveAll(filepath.Join(outputDir, root)); err != nil {
			return fmt.Errorf("clear %s: %w", root, err)
		}
	}
	for _, rel := range sortedKeys(want) {
		path := filepath.Join(outputDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", rel, err)
		}
		if err := os.WriteFile(path, want[rel], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}

// checkDocs fails on the first generated file that is missing, changed, or
// joined by a stray file under a generated root.
func checkDocs(want map[string][]byte, outputDir string) error {
	have, err := readTree(outputDir, docRoots)
	if err != nil {
		return err
	}
	for _, rel := range sortedKeys(want) {
		got, ok := have[rel]
		if !ok {
			return fmt.Errorf("docs out of date: missing %s", rel)
		}
		if !bytes.Equal(got, want[rel]) {
			return fmt.Errorf("docs out of date: %s differs; run `basedagent docs generate`", rel)
		}
	}
	for _, rel := range sortedKeys(have) {
		if _, ok := want[rel]; !ok {
			return fmt.Errorf("docs out of date: unexpected %s", rel)
		}
	}
	return nil
}

// renderDocs builds every reference file in memory, keyed by path relative
// to the docs root.
func renderDocs(cliRoot *cobra.Command) (map[string][]byte, error) {
	tmp, err := os.MkdirTemp("", "basedagent-docs-*")
	if err != nil {
		return nil, fmt.Errorf("create temp docs dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	disableAutoGenTag(cliRoot)
	cliDir := filepath.Join(tmp, docRoots[0])
	manDir := filepath.Join(tmp, docRoots[1])
	for _, dir := range []string{cliDir, manDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	title := func(filename string) string {
		name := strings.TrimSuffix(filepath.Base(filename), ".md")
		return "# " + strings.ReplaceAll(name, "_", " ") + "\n\n"
	}
	if err := cobraDoc.GenMarkdownTreeCustom(cliRoot, cliDir, title, func(s string) string { return s }); err != nil {
		return nil, fmt.Errorf("generate cli markdown: %w", err)
	}
	header := &cobraDoc.GenManHeader{Title: "BASEDAGENT", Section: "1", Source: appName}
	if err := cobraDoc.GenManTree(cliRoot, header, manDir); err != nil {
		return nil, fmt.Errorf("generate man pages: %w", err)
	}

	out, err := readTree(tmp, docRoots[:2])
	if err != nil {
		return nil, err
	}
	rows, err := configRows()
	if err != nil {
		return nil, err
	}
	out[docRoots[2]] = []byte(configReference(rows))
	out[docRoots[3]] = []byte(providersReference(rows))
	out[docRoots[4]] = []byte(toolsReference())
	return out, nil
}

func disableAutoGenTag(cmd *cobra.Command) {
	cmd.DisableAutoGenTag = true
	for _, child := range cmd.Commands() {
		disableAutoGenTag(child)
	}
}

// readTree loads every file under the given roots of dir. Missing roots are
// skipped.
func readTree(dir string, roots []string) (map[string][]byte, error) {
	out := map[string][]byte{}
	for _, root := range roots {
		err := filepath.WalkDir(filepath.Join(dir, root), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return fs.SkipDir
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			out[rel] = data
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", root, err)
		}
	}
	return out, nil
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type configRow struct {
	Path    string
	Type    string
	Env     string
	Default string
}

// configRows walks config.Config by json tag and pairs each leaf with its
// env var and the value config.DefaultConfig() gives it.
func configRows() ([]configRow, error) {
	raw, err := json.Marshal(config.DefaultConfig())
	if err != nil {
		return nil, err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}

	var rows []configRow
	var walk func(t reflect.Type, prefix string, defaults map[string]interface{})
	walk = func(t reflect.Type, prefix string, defaults map[string]interface{}) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			key := strings.Split(f.Tag.Get("json"), ",")[0]
			if !f.IsExported() || key == "" || key == "-" {
				continue
			}
			path := strings.TrimPrefix(prefix+"."+key, ".")
			if f.Type.Kind() == reflect.Struct {
				nested, _ := defaults[key].(map[string]interface{})
				walk(f.Type, path, nested)
				continue
			}
			def := "-"
			if v, ok := defaults[key]; ok {
				encoded, _ := json.Marshal(v)
				def = string(encoded)
			}
			rows = append(rows, configRow{
				Path:    path,
				Type:    typeLabel(f.Type),
				Env:     valueOr(f.Tag.Get("env"), "-"),
				Default: def,
			})
		}
	}
	walk(reflect.TypeOf((*config.Config)(nil)).Elem(), "", tree)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
	return rows, nil
}

func typeLabel(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Slice:
		return "[]" + typeLabel(t.Elem())
	default:
		return t.Kind().String()
	}
}

func writeRowTable(b *strings.Builder, rows []configRow) {
	b.WriteString("| Key | Type | Env Var | Default |\n| --- | --- | --- | --- |\n")
	for _, r := range rows {
		fmt.Fprintf(b, "| `%s` | `%s` | `%s` | `%s` |\n",
			escapePipes(r.Path), r.Type, escapePipes(r.Env), escapePipes(r.Default))
	}
}

func configReference(rows []configRow) string {
	var b strings.Builder
	b.WriteString("# Config Reference\n\n")
	b.WriteString("Generated from `pkg/config`. Environment variables override the JSON file.\n\n")
	writeRowTable(&b, rows)
	return b.String()
}

var providerBlurbs = map[string]string{
	providers.ProviderOpenAI:     "OpenAI Chat Completions with function calling.",
	providers.ProviderOpenRouter: "OpenRouter's OpenAI-compatible Chat Completions endpoint.",
	providers.ProviderAnthropic:  "Anthropic Messages API with tool use.",
}

func providersReference(rows []configRow) string {
	names := providers.SupportedProviders()
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# Provider Reference\n\n")
	b.WriteString("Select one with `agent.provider`; every provider needs an `api_key`.\n\n")
	for _, name := range names {
		prefix := "providers." + name + "."
		var own []configRow
		for _, r := range rows {
			if strings.HasPrefix(r.Path, prefix) {
				own = append(own, r)
			}
		}
		fmt.Fprintf(&b, "## `%s`\n\n", name)
		if blurb := providerBlurbs[name]; blurb != "" {
			b.WriteString(blurb + "\n\n")
		}
		if len(own) > 0 {
			writeRowTable(&b, own)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// toolsReference lists the wallet tools with their parameters; required
// parameters are starred.
func toolsReference() string {
	registry := tools.NewToolRegistry()
	tools.RegisterWalletTools(registry, wallet.NewService(config.DefaultConfig().Wallet), wallet.Data{})

	var b strings.Builder
	b.WriteString("# Tool Reference\n\n")
	b.WriteString("| Tool | Description | Parameters |\n| --- | --- | --- |\n")
	for _, def := range registry.Definitions() {
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n",
			def.Function.Name, escapePipes(def.Function.Description), paramList(def.Function.Parameters))
	}
	b.WriteString("\nWallet tools are offered only when the user has a stored, decodable wallet. ")
	b.WriteString("Only `eth` and `usdc` are accepted; USDC transfers are gasless.\n")
	return b.String()
}

func paramList(schema map[string]interface{}) string {
	props, _ := schema["properties"].(map[string]interface{})
	if len(props) == 0 {
		return "-"
	}
	required := map[string]bool{}
	switch req := schema["required"].(type) {
	case []string:
		for _, r := range req {
			required[r] = true
		}
	case []interface{}:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}
	names := make([]string, 0, len(props))
	for name := range props {
		label := "`" + name + "`"
		if required[name] {
			label += "*"
		}
		names = append(names, label)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func escapePipes(v string) string {
	return strings.ReplaceAll(v, "|", "\\|")
}
