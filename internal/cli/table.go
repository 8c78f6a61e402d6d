package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/forPelevin/cuestream/internal/domain/cues"
	"github.com/forPelevin/cuestream/internal/types"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func cueTable(list []types.Cue) string {
	rows := make([][]string, 0, len(list))
	for i, c := range list {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%.3f", c.Start),
			fmt.Sprintf("%.3f", c.End),
			strconv.Itoa(types.WordCount(c.Text)),
			cues.Truncate(c.Text, 60),
		})
	}
	return renderTable(
		[]string{"#", "Start", "End", "Words", "Text"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
