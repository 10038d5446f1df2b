package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"vetbridge/internal/infrastructure/dbf"
)

var (
	inspectFormat string
	inspectLimit  int
	inspectAll    bool
)

type inspectField struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Length   int    `json:"length" yaml:"length"`
	Decimals int    `json:"decimals,omitempty" yaml:"decimals,omitempty"`
}

type inspectRecord struct {
	Index   int            `json:"index" yaml:"index"`
	Deleted bool           `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Fields  map[string]any `json:"fields" yaml:"fields"`
}

type inspectOutput struct {
	File        string          `json:"file" yaml:"file"`
	Version     byte            `json:"version" yaml:"version"`
	LastUpdate  string          `json:"lastUpdate" yaml:"lastUpdate"`
	RecordCount int             `json:"recordCount" yaml:"recordCount"`
	Fields      []inspectField  `json:"fields" yaml:"fields"`
	Records     []inspectRecord `json:"records" yaml:"records"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.dbf>",
	Short: "Показать структуру и записи таблицы dBase",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		table, err := dbf.Open(args[0])
		if err != nil {
			return err
		}
		defer table.Close()

		h := table.Header()
		out := inspectOutput{
			File:        args[0],
			Version:     h.Version,
			LastUpdate:  h.LastUpdate.Format(time.DateOnly),
			RecordCount: h.RecordCount,
		}
		for _, f := range h.Fields {
			out.Fields = append(out.Fields, inspectField{Name: f.Name, Type: f.Type.String(), Length: f.Length, Decimals: f.Decimals})
		}

		for rec, err := range table.Records() {
			if err != nil {
				return err
			}
			if rec.Deleted && !inspectAll {
				continue
			}
			if len(out.Records) >= inspectLimit {
				break
			}
			out.Records = append(out.Records, inspectRecord{Index: rec.Index, Deleted: rec.Deleted, Fields: rec.Fields})
		}

		switch inspectFormat {
		case "json":
			return printJSON(os.Stdout, out)
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(out)
		case "text":
			printInspectText(out)
			return nil
		}
		return fmt.Errorf("неизвестный формат %q: text, json или yaml", inspectFormat)
	},
}

func printInspectText(out inspectOutput) {
	fmt.Printf("%s %s\n", bold("Таблица"), out.File)
	fmt.Printf("Версия 0x%02X, обновлена %s, записей %d\n\n", out.Version, out.LastUpdate, out.RecordCount)

	for _, f := range out.Fields {
		fmt.Printf("  %-12s %-10s %d", f.Name, f.Type, f.Length)
		if f.Decimals > 0 {
			fmt.Printf(".%d", f.Decimals)
		}
		fmt.Println()
	}

	for _, r := range out.Records {
		fmt.Println()
		mark := ""
		if r.Deleted {
			mark = " " + yellow("(удалена)")
		}
		fmt.Printf("#%d%s\n", r.Index, mark)
		for _, f := range out.Fields {
			fmt.Printf("  %-12s %s\n", f.Name, formatValue(r.Fields[f.Name]))
		}
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case time.Time:
		return val.Format(time.DateOnly)
	case string:
		return strings.TrimSpace(val)
	}
	return fmt.Sprint(v)
}

func init() {
	standalone(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "text", "формат вывода: text, json, yaml")
	inspectCmd.Flags().IntVarP(&inspectLimit, "limit", "n", 5, "сколько записей показать")
	inspectCmd.Flags().BoolVar(&inspectAll, "deleted", false, "показывать удаленные записи")
}
