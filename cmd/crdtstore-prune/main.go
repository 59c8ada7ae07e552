// Command crdtstore-prune is a placeholder for a pruning policy the core
// deliberately doesn't implement (spec §9.2: pruning is deferred, the core
// only ever grows). It mirrors the shape of the teacher's cmd/bulk-delete
// (flag-driven batch CLI over an ID range) without implementing any
// deletion behavior — running it is a documented no-op that explains why.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	fid := flag.Int64("fid", 0, "fid to prune (unimplemented)")
	before := flag.String("before", "", "prune messages with timestamp before this RFC3339 time (unimplemented)")
	flag.Parse()

	fmt.Fprintln(os.Stderr, "crdtstore-prune: pruning policy is out of scope for this store (spec §9.2)")
	fmt.Fprintln(os.Stderr, "the core is append-and-supersede only; nothing here deletes live state.")
	if *fid != 0 || *before != "" {
		fmt.Fprintln(os.Stderr, "refusing to run with -fid/-before: no pruning policy exists to carry them out.")
	}
	os.Exit(1)
}
