package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vntransl/internal/glossary"
)

func newGlossaryCommand(ctx *commandContext) *cobra.Command {
	glossaryCmd := &cobra.Command{
		Use:   "glossary",
		Short: "Glossary utilities",
	}
	glossaryCmd.AddCommand(newGlossaryCheckCommand(ctx))
	return glossaryCmd
}

func newGlossaryCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Parse every configured glossary file and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			type table struct {
				name      string
				files     []string
				withNotes bool
			}
			tables := []table{
				{"pre", cfg.Glossary.Pre.Files, false},
				{"pos", cfg.Glossary.Post.Files, false},
				{"gpt", cfg.Glossary.GPT.Files, true},
			}

			out := cmd.OutOrStdout()
			var rows [][]string
			problems := 0
			for _, tbl := range tables {
				for _, file := range tbl.files {
					rules, parseErr := glossary.ParseFile(file, tbl.withNotes)
					if parseErr != nil {
						problems++
						rows = append(rows, []string{tbl.name, file, "ERROR", parseErr.Error()})
						continue
					}
					rows = append(rows, []string{tbl.name, file, strconv.Itoa(len(rules)) + " rules", ""})
				}
			}

			if len(rows) == 0 {
				fmt.Fprintln(out, "No glossary files configured")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]column{{header: "Table"}, {header: "File"}, {header: "Result"}, {header: "Detail"}},
				rows,
			))
			if problems > 0 {
				return fmt.Errorf("%d glossary file(s) failed to parse", problems)
			}

			engine, err := glossary.Load(cfg.Glossary)
			if err != nil {
				return err
			}
			pre, post, gpt := engine.Sizes()
			fmt.Fprintf(out, "Merged rules: pre=%d pos=%d gpt=%d\n", pre, post, gpt)
			return nil
		},
	}
}
