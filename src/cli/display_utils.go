package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"lsp-session-manager/src/config"
	"lsp-session-manager/src/internal/common"
	"lsp-session-manager/src/internal/registry"
)

// printLanguages writes the language table, configured overrides first in priority
func printLanguages(w io.Writer, cfg *config.Config) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LANGUAGE\tSOURCE\tCOMMAND\tON PATH\tEXTENSIONS")

	seen := make(map[string]bool)
	for _, lang := range registry.GetSupportedLanguages() {
		seen[lang.Name] = true
		source, executable, command := "built-in", lang.DefaultCommand, lang.CommandLine()
		if sc, ok := cfg.ServerFor(lang.Name); ok {
			source, executable, command = "configured", sc.Command, commandLine(sc)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", lang.Name, source, command, onPath(executable), strings.Join(lang.Extensions, " "))
	}
	for _, name := range cfg.Languages() {
		if seen[name] {
			continue
		}
		sc, _ := cfg.ServerFor(name)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, "configured", commandLine(sc), onPath(sc.Command), "-")
	}
	_ = tw.Flush()
}

func onPath(command string) string {
	if common.HasExecutable(command) {
		return "yes"
	}
	return "no"
}

func commandLine(sc *config.ServerConfig) string {
	return strings.TrimSpace(sc.Command + " " + strings.Join(sc.Args, " "))
}
