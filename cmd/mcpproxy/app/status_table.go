package app

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/stacklok/mcp-aggregator/pkg/backend"
)

// renderStatusTable renders a backend status table to stdout.
func renderStatusTable(statuses []backend.BackendStatus) error {
	if len(statuses) == 0 {
		fmt.Println("No backends configured.")
		return nil
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })

	table := tablewriter.NewWriter(os.Stdout)
	table.Options(
		tablewriter.WithHeader([]string{"Backend", "Status", "Last Error"}),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(3, tw.AlignLeft)),
	)

	for _, s := range statuses {
		statusIcon := "❌ " + s.Status
		if s.Status == "connected" {
			statusIcon = "✅ " + s.Status
		}
		if err := table.Append([]string{s.ID, statusIcon, s.LastError}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
