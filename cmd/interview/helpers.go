package main

import (
	"context"
	"errors"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/mimic-ai/interview/internal/apperr"
)

// userFacing replaces a tagged error with the message shown to users.
func userFacing(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var e *apperr.Error
	if errors.As(err, &e) {
		return errors.New(e.UserMessage())
	}
	return err
}

func renderKeyValue(rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	for _, r := range rows {
		tw.AppendRow(table.Row{r[0], r[1]})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
	})
	return tw.Render()
}
