// Package patch defines the Evergreen patch data carried through the
// export pipeline and the flat records written to the CSV file.
package patch

import (
	"strconv"
	"strings"
	"time"
)

const (
	// CommitQueueAlias marks patches submitted by the merge queue.
	// Such patches are excluded from the export.
	CommitQueueAlias = "__commit_queue"

	// TaskDelimiter joins the task names of one build variant.
	TaskDelimiter = "|"
)

// RecordHeader is the column layout of the export.
var RecordHeader = []string{"id", "author", "alias", "build_variant", "tasks", "n_tasks"}

// Summary is one entry of the project patch listing.
type Summary struct {
	ID          string
	Author      string
	CreatedAt   time.Time
	Description string
}

// VariantTasks lists the tasks scheduled for one build variant.
type VariantTasks struct {
	Name  string   `json:"name"`
	Tasks []string `json:"tasks"`
}

// Detail is the fully resolved patch returned by the detail lookup.
type Detail struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Author      string         `json:"author"`
	Alias       *string        `json:"alias,omitempty"`
	Variants    []VariantTasks `json:"variants"`
}

// AliasOrEmpty returns the alias, or "" when the patch has none.
func (d *Detail) AliasOrEmpty() string {
	if d.Alias == nil {
		return ""
	}
	return *d.Alias
}

// Excluded reports whether the patch was created by the commit queue.
func (d *Detail) Excluded() bool {
	return d.Alias != nil && *d.Alias == CommitQueueAlias
}

// Records flattens the patch into one Record per build variant, in
// variant order. Excluded patches produce no records.
func (d *Detail) Records() []Record {
	if d.Excluded() || len(d.Variants) == 0 {
		return nil
	}

	alias := d.AliasOrEmpty()
	records := make([]Record, 0, len(d.Variants))
	for _, v := range d.Variants {
		records = append(records, Record{
			ID:           d.ID,
			Author:       d.Author,
			Alias:        alias,
			BuildVariant: v.Name,
			Tasks:        strings.Join(v.Tasks, TaskDelimiter),
			NTasks:       len(v.Tasks),
		})
	}
	return records
}

// Record is one row of the export.
type Record struct {
	ID           string
	Author       string
	Alias        string
	BuildVariant string
	Tasks        string
	NTasks       int
}

// Row returns the record's fields in RecordHeader order.
func (r Record) Row() []string {
	return []string{r.ID, r.Author, r.Alias, r.BuildVariant, r.Tasks, strconv.Itoa(r.NTasks)}
}
