// Command archive-inspect prints the contents of an exported reading archive.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/healnexus/internal/models"
	"github.com/healnexus/internal/storage"
)

func main() {
	head := flag.Int("n", 3, "number of readings to print")
	asJSON := flag.Bool("json", false, "dump every reading as a JSON array")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: archive-inspect [-n N] [-json] <export.hnx>")
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read archive: %v", err)
	}
	readings, err := storage.ReadArchive(data)
	if err != nil {
		log.Fatalf("Failed to decode archive: %v", err)
	}

	if *asJSON {
		if err := dumpJSON(os.Stdout, readings); err != nil {
			log.Fatalf("Failed to write JSON: %v", err)
		}
		return
	}
	summarize(os.Stdout, flag.Arg(0), len(data), readings, *head)
}

func dumpJSON(w io.Writer, readings []models.Reading) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(readings)
}

func summarize(w io.Writer, name string, size int, readings []models.Reading, head int) {
	fmt.Fprintf(w, "%s: %d readings in %d bytes\n", name, len(readings), size)
	if len(readings) == 0 {
		return
	}
	first, last := readings[0].Time().UTC(), readings[len(readings)-1].Time().UTC()
	fmt.Fprintf(w, "span: %s .. %s (%s)\n", first.Format(time.RFC3339), last.Format(time.RFC3339), last.Sub(first))

	fmt.Fprintf(w, "\nFirst %d readings:\n", min(head, len(readings)))
	for i := 0; i < head && i < len(readings); i++ {
		r := readings[i]
		fmt.Fprintf(w, "  Timestamp: %d, BPM: %.0f, Temperature: %.1f, Steps: %.0f\n",
			r.Timestamp, r.BPM, r.Temperature, r.Steps)
	}
}
