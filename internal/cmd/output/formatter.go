// Package output renders store values for the command line.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/rebase/pkg/errors"
)

// Format names an output encoding.
type Format string

// Supported formats. FormatWide is a table whose cells are never truncated.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatWide  Format = "wide"
)

// Formatter writes data to w.
type Formatter interface {
	Format(w io.Writer, data any) error
}

type formatFunc func(io.Writer, any) error

func (f formatFunc) Format(w io.Writer, data any) error { return f(w, data) }

// NewFormatter returns the formatter for format. Unknown formats get a table.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return formatFunc(writeJSON)
	case FormatYAML:
		return formatFunc(writeYAML)
	case FormatWide:
		return formatFunc(func(w io.Writer, data any) error { return writeTable(w, data, true) })
	default:
		return formatFunc(func(w io.Writer, data any) error { return writeTable(w, data, false) })
	}
}

// ParseFormat validates a --format value. The empty string is accepted and
// means detect.
func ParseFormat(s string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(s)))
	switch format {
	case FormatTable, FormatJSON, FormatYAML, FormatWide, "":
		return format, nil
	}
	return "", errors.NewValidationError("format", s, "must be one of: table, json, yaml, wide")
}

// DetectFormat picks a format for w when none was requested: tables for a
// terminal and JSON for pipes, files and buffers.
func DetectFormat(explicit Format, w io.Writer) Format {
	if explicit != "" {
		return explicit
	}
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			return FormatTable
		}
	}
	return FormatJSON
}

func writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func writeYAML(w io.Writer, data any) error {
	b, err := yaml.MarshalWithOptions(data, yaml.Indent(2), yaml.IndentSequence(false))
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// writeTable renders store values as key/value rows and structs as
// property/value rows. Anything else is written as JSON.
func writeTable(w io.Writer, data any, wide bool) error {
	switch v := data.(type) {
	case Data:
		return render(w, v)
	case *Data:
		return render(w, *v)
	case map[string]any, []any, string, float64, bool, nil:
		return render(w, Values(v, wide))
	}
	if d, ok := properties(data); ok {
		return render(w, d)
	}
	return writeJSON(w, data)
}

// Align is a table column alignment.
type Align int

const (
	AlignDefault Align = iota
	AlignLeft
	AlignCenter
	AlignRight
)

var twAlign = map[Align]tw.Align{
	AlignLeft:   tw.AlignLeft,
	AlignCenter: tw.AlignCenter,
	AlignRight:  tw.AlignRight,
}

// Data is a table ready for rendering.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align
}

func render(w io.Writer, data Data) error {
	var cfg tablewriter.Config
	if n := len(data.ColumnAlignment); n > 0 {
		align := make([]tw.Align, n)
		for i, a := range data.ColumnAlignment {
			if ta, ok := twAlign[a]; ok {
				align[i] = ta
			} else {
				align[i] = tw.Skip
			}
		}
		cfg.Header.Alignment = tw.CellAlignment{PerColumn: align}
		cfg.Row.Alignment = tw.CellAlignment{PerColumn: align}
	}

	table := tablewriter.NewTable(w, tablewriter.WithConfig(cfg))
	if len(data.Headers) > 0 {
		table.Header(anys(data.Headers)...)
	}
	for _, row := range data.Rows {
		if err := table.Append(anys(row)...); err != nil {
			return err
		}
	}
	return table.Render()
}

func anys(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// properties lays out the exported fields of a struct, or a pointer to one,
// titled from their json names.
func properties(data any) (Data, bool) {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return Data{}, false
	}

	title := cases.Title(language.English)
	out := Data{Headers: []string{"Property", "Value"}}
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag != "" && tag != "-" {
			name = title.String(strings.ReplaceAll(tag, "_", " "))
		}
		out.Rows = append(out.Rows, []string{name, fmt.Sprint(v.Field(i).Interface())})
	}
	return out, true
}
