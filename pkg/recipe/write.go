// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package recipe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Write renders the recipe in file form. Metadata lines are written only
// when set.
func (r *Recipe) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if r.Author != "" {
		fmt.Fprintf(bw, "%s %s\n", authorPrefix, r.Author)
	}
	if r.Created != "" {
		fmt.Fprintf(bw, "%s %s\n", createdPrefix, r.Created)
	}
	if r.Modified != "" {
		fmt.Fprintf(bw, "%s %s\n", modifiedPrefix, r.Modified)
	}
	fmt.Fprintf(bw, "%s%s\n", columnsPrefix, strings.Join(r.Columns, ","))

	cells := make([]string, len(r.Columns))
	for _, s := range r.Steps {
		for i, c := range r.Columns {
			switch {
			case isTime(c):
				cells[i] = formatNumber(s.Duration.Seconds())
			case isTemperature(c):
				cells[i] = formatNumber(s.Temperature)
			default:
				cells[i] = formatNumber(s.Flows[c])
			}
		}
		fmt.Fprintln(bw, strings.Join(cells, ","))
	}

	return bw.Flush()
}

// Save writes the recipe to path, stamping the modification date and the
// creation date if it has none
func (r *Recipe) Save(path string, now time.Time) error {
	today := now.Format(time.DateOnly)
	if r.Created == "" {
		r.Created = today
	}
	r.Modified = today

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
