// Package report renders a feedback report for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// View is the part of a report the terminal understands. Unknown fields are kept in Extra.
type View struct {
	Grade      string             `json:"grade"`
	Scores     map[string]float64 `json:"scores"`
	Critique   string             `json:"critique"`
	Summary    string             `json:"summary"`
	Transcript string             `json:"transcript"`
	Extra      map[string]json.RawMessage
}

var knownKeys = map[string]bool{"grade": true, "scores": true, "critique": true, "summary": true, "transcript": true}

// Parse reads a report. Reports that are not JSON objects yield an error.
func Parse(raw []byte) (View, error) {
	var v View
	if err := json.Unmarshal(raw, &v); err != nil {
		return View{}, fmt.Errorf("parse report: %w", err)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return View{}, fmt.Errorf("parse report: %w", err)
	}
	for k, val := range all {
		if knownKeys[k] {
			continue
		}
		if v.Extra == nil {
			v.Extra = make(map[string]json.RawMessage)
		}
		v.Extra[k] = val
	}
	return v, nil
}

// scoreOrder lists radar axes in display order; other axes follow alphabetically.
var scoreOrder = []string{"content", "gaze", "emotion", "speed", "volume"}

var scoreLabels = map[string]string{
	"content": "内容",
	"gaze":    "視線",
	"emotion": "表情",
	"speed":   "話速",
	"volume":  "声量",
}

// Render formats a report. Anything unparseable is printed raw.
func Render(question string, raw []byte) string {
	v, err := Parse(raw)
	if err != nil {
		return string(raw)
	}
	var b strings.Builder
	if question != "" {
		fmt.Fprintf(&b, "質問: %s\n", question)
	}
	if v.Grade != "" {
		fmt.Fprintf(&b, "総合評価: %s\n", v.Grade)
	}
	if len(v.Scores) > 0 {
		b.WriteString(scoreTable(v.Scores))
		b.WriteString("\n")
	}
	if v.Summary != "" {
		fmt.Fprintf(&b, "\n要約:\n%s\n", v.Summary)
	}
	if v.Critique != "" {
		fmt.Fprintf(&b, "\n講評:\n%s\n", v.Critique)
	}
	if v.Transcript != "" {
		fmt.Fprintf(&b, "\n文字起こし:\n%s\n", v.Transcript)
	}
	if len(v.Extra) > 0 {
		b.WriteString("\n")
		b.WriteString(extraTable(v.Extra))
		b.WriteString("\n")
	}
	return b.String()
}

func scoreTable(scores map[string]float64) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"項目", "スコア"})
	for _, k := range orderedKeys(scores) {
		label := scoreLabels[k]
		if label == "" {
			label = k
		}
		tw.AppendRow(table.Row{label, fmt.Sprintf("%.0f", scores[k])})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func extraTable(extra map[string]json.RawMessage) string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"key", "value"})
	for _, k := range keys {
		val := string(extra[k])
		var s string
		if json.Unmarshal(extra[k], &s) == nil {
			val = s
		}
		tw.AppendRow(table.Row{k, text.Trim(val, 80)})
	}
	return tw.Render()
}

func orderedKeys(scores map[string]float64) []string {
	seen := make(map[string]bool, len(scores))
	keys := make([]string, 0, len(scores))
	for _, k := range scoreOrder {
		if _, ok := scores[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range scores {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
