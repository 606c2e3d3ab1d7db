package pipeline

import (
	"github.com/dbradf/evg-patch-history/pkg/patch"
	"github.com/rs/zerolog"
)

// Transform flattens lookup results into records in result order. A
// failed lookup is logged and yields no records; so does a patch
// excluded by its alias.
func Transform(results []Result, logger zerolog.Logger) []patch.Record {
	var records []patch.Record
	for _, r := range results {
		if r.Err != nil {
			logger.Warn().
				Err(r.Err).
				Str("patch_id", r.ID).
				Msg("Skipping patch after failed lookup")
			continue
		}
		if r.Detail.Excluded() {
			logger.Debug().
				Str("patch_id", r.ID).
				Str("alias", r.Detail.AliasOrEmpty()).
				Msg("Skipping excluded patch")
			continue
		}
		records = append(records, r.Detail.Records()...)
	}
	return records
}

// batchTally counts the outcomes of one batch.
type batchTally struct {
	resolved int
	failed   int
	excluded int
}

func tally(results []Result) batchTally {
	var t batchTally
	for _, r := range results {
		switch {
		case r.Err != nil:
			t.failed++
		case r.Detail.Excluded():
			t.excluded++
		default:
			t.resolved++
		}
	}
	return t
}
