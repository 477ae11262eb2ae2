// Package out renders command envelopes as indented JSON or as plain
// key=value lines.
package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/intentfi/intentfi/internal/config"
	"github.com/intentfi/intentfi/internal/model"
)

func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := generic(env.Data)
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}
	plain := settings.OutputMode != "json"

	switch {
	case settings.ResultsOnly && plain:
		return writePlain(w, data)
	case settings.ResultsOnly:
		return writeJSON(w, data)
	case plain:
		fields := map[string]any{
			"success": env.Success,
			"command": env.Meta.Command,
		}
		if env.Error != nil {
			fields["error"] = fmt.Sprintf("%s (%d): %s", env.Error.Type, env.Error.Code, env.Error.Message)
		}
		if err := writeLine(w, "", fields); err != nil {
			return err
		}
		return writePlain(w, data)
	default:
		env.Data = data
		return writeJSON(w, env)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writePlain prints one line per record. Lists of records nested in a record,
// such as plan steps, follow their parent as indented "- " lines.
func writePlain(w io.Writer, data any) error {
	switch t := data.(type) {
	case nil:
		_, err := fmt.Fprintln(w, "null")
		return err
	case []any:
		if len(t) == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		for _, item := range t {
			if err := writeRecord(w, "", item); err != nil {
				return err
			}
		}
		return nil
	default:
		return writeRecord(w, "", t)
	}
}

func writeRecord(w io.Writer, indent string, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return writeLine(w, indent, v)
	}
	scalars := make(map[string]any, len(m))
	var nested []string
	for k, val := range m {
		if records, ok := val.([]any); ok && len(records) > 0 && isRecord(records[0]) {
			nested = append(nested, k)
			continue
		}
		scalars[k] = val
	}
	if err := writeLine(w, indent, scalars); err != nil {
		return err
	}
	sort.Strings(nested)
	for _, k := range nested {
		if _, err := fmt.Fprintf(w, "%s%s:\n", indent+"  ", k); err != nil {
			return err
		}
		for _, item := range m[k].([]any) {
			if err := writeRecord(w, indent+"  - ", item); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeLine(w io.Writer, indent string, v any) error {
	line, err := toLine(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, indent+line)
	return err
}

func isRecord(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// project keeps the selected fields of a record or of every record in a list.
// A dotted field such as "meta.chain" reaches into nested records.
func project(data any, fields []string) any {
	switch t := data.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, projectMap(m, fields))
			}
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return data
	}
}

func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := lookup(m, strings.Split(f, ".")); ok {
			out[f] = v
		}
	}
	return out
}

func lookup(m map[string]any, path []string) (any, bool) {
	v, ok := m[path[0]]
	if !ok || len(path) == 1 {
		return v, ok
	}
	child, isMap := v.(map[string]any)
	if !isMap {
		return nil, false
	}
	return lookup(child, path[1:])
}

// generic round-trips v through JSON so typed structs project and print by
// their JSON field names.
func generic(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func toLine(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch val := m[k].(type) {
		case string:
			if strings.ContainsAny(val, " \t") {
				parts = append(parts, fmt.Sprintf("%s=%q", k, val))
				continue
			}
			parts = append(parts, k+"="+val)
		case map[string]any, []any:
			buf, err := json.Marshal(val)
			if err != nil {
				return "", err
			}
			parts = append(parts, k+"="+string(buf))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, val))
		}
	}
	return strings.Join(parts, " "), nil
}
