package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ppiankov/lupa/internal/model"
)

// envelopeKeys are the wrapper keys remote APIs put record lists under
var envelopeKeys = []string{"data", "items", "resultado", "results", "content", "registros"}

// decodeJSON turns a JSON body into flat records. Accepts a top-level array,
// an object wrapping an array under one of envelopeKeys, or a single object.
func decodeJSON(body []byte) ([]model.Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}

	switch v := raw.(type) {
	case []any:
		return recordsFromList(v), nil
	case map[string]any:
		for _, key := range envelopeKeys {
			switch inner := v[key].(type) {
			case []any:
				return recordsFromList(inner), nil
			case map[string]any:
				return []model.Record{flatten(inner)}, nil
			}
		}
		return []model.Record{flatten(v)}, nil
	default:
		return []model.Record{{"value": v}}, nil
	}
}

func recordsFromList(items []any) []model.Record {
	out := make([]model.Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, flatten(m))
			continue
		}
		out = append(out, model.Record{"value": item})
	}
	return out
}

// flatten lifts nested objects into dotted keys: {"orgao":{"nome":"x"}}
// becomes {"orgao.nome":"x"}. Lists are kept as they are.
func flatten(m map[string]any) model.Record {
	out := make(model.Record, len(m))
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if inner, ok := v.(map[string]any); ok {
				walk(key, inner)
				continue
			}
			out[key] = v
		}
	}
	walk("", m)
	return out
}

// decodeHTMLTables turns every <table> with a header row into records keyed
// by the header text. Portal pages publish their listings this way.
func decodeHTMLTables(body []byte) ([]model.Record, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var records []model.Record
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			records = append(records, tableRecords(n)...)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return records, nil
}

func tableRecords(table *html.Node) []model.Record {
	var rows [][]*html.Node
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Tr:
				rows = append(rows, cells(c))
			case atom.Table:
				// nested tables are decoded on their own
			default:
				collect(c)
			}
		}
	}
	collect(table)

	if len(rows) < 2 {
		return nil
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = headerKey(textContent(cell))
	}

	out := make([]model.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := model.Record{}
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			rec[header[i]] = textContent(cell)
		}
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

func cells(tr *html.Node) []*html.Node {
	var out []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			out = append(out, c)
		}
	}
	return out
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// headerKey turns a column title into a record key: "Valor Total" -> "valor_total"
func headerKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

// mapFields renames record keys through fieldMap, recursing into nested lists
func mapFields(records []model.Record, fieldMap map[string]string) []model.Record {
	if len(fieldMap) == 0 {
		return records
	}
	out := make([]model.Record, len(records))
	for i, rec := range records {
		out[i] = mapRecord(rec, fieldMap)
	}
	return out
}

func mapRecord(rec model.Record, fieldMap map[string]string) model.Record {
	out := make(model.Record, len(rec))
	for k, v := range rec {
		if list, ok := v.([]any); ok {
			mapped := make([]any, len(list))
			for i, item := range list {
				if m, ok := item.(map[string]any); ok {
					mapped[i] = map[string]any(mapRecord(model.Record(m), fieldMap))
					continue
				}
				mapped[i] = item
			}
			v = mapped
		}
		if to, ok := fieldMap[k]; ok && to != k {
			// a key already in conventional form wins over a renamed duplicate
			if _, native := rec[to]; native {
				continue
			}
			k = to
		}
		out[k] = v
	}
	return out
}
