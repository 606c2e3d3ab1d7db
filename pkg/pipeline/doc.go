// Package pipeline implements the patch export pipeline.
//
// A Producer walks the project patch listing newest first and feeds
// patch ids into an unbounded Queue until it reaches the lookback
// cutoff, then sends a single End message. A Collector drains the
// Queue into batches of Config.BatchSize ids, resolves each batch with
// a concurrent FanOut, flattens the results into records and appends
// them to a Sink. The Sink is written exactly once, after both tasks
// have finished.
//
// Basic usage:
//
//	cfg := pipeline.DefaultConfig("mongodb-mongo-master")
//	p, err := pipeline.New(cfg, evgClient, evgClient, export.NewCSVWriter("patches.csv"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	summary, err := p.Run(ctx)
//
// A failed lookup never stops the run: the patch contributes no
// records and is counted in Summary.Failed. A failure of the listing
// or of the final write fails the run and nothing is written.
package pipeline
