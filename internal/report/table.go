package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// WriteTable prints records as an aligned table
func WriteTable(w io.Writer, records []*EntryRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "TASK\tARCHIVE\tINDEX\tNAME\tKEY\tSTATUS\tUPDATED\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			r.TaskID,
			r.Archive,
			r.Index,
			r.Name,
			r.Key,
			r.Status,
			r.UpdatedAt.Local().Format(time.DateTime),
			r.LastError,
		)
	}

	return tw.Flush()
}
