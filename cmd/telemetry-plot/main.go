// Command telemetry-plot renders the recorded telemetry of one guidance
// session as PNG line plots, one file per series group.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/banshee-data/erov.guidance/internal/db"
)

var (
	dbPath    = flag.String("db", "operator.db", "Telemetry database path")
	sessionID = flag.String("session", "", "Session to plot (defaults to the most recent)")
	outDir    = flag.String("out", "plots", "Output directory; a per-session subdirectory is created")
	limit     = flag.Int("n", 0, "Plot only the last n records (0 plots all)")
	list      = flag.Bool("list", false, "List sessions and exit")
)

func main() {
	flag.Parse()

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	if *list {
		sessions, err := store.Sessions()
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-8s  %s  %d records\n", s.ID, s.Preset, s.StartedAt.Format(time.RFC3339), s.Records)
		}
		return
	}

	id := *sessionID
	if id == "" {
		latest, err := store.LatestSession()
		if err != nil {
			log.Fatalf("failed to find latest session: %v", err)
		}
		id = latest.ID
	}

	records, err := store.Telemetry(id, *limit)
	if err != nil {
		log.Fatalf("failed to load telemetry: %v", err)
	}
	if len(records) == 0 {
		log.Fatalf("session %s has no telemetry", id)
	}

	dir := filepath.Join(*outDir, id)
	files, err := generatePlots(records, dir)
	if err != nil {
		log.Fatalf("failed to generate plots: %v", err)
	}
	for _, f := range files {
		log.Printf("wrote %s", f)
	}
}
