package main

import (
	"flag"
	"fmt"
	"os"

	recordingcatalog "ballancemmo/relay/tools/recording_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing flight recordings")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := recordingcatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := recordingcatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		state := "live"
		if entry.Archived {
			state = "archived"
		}
		fmt.Printf("%s (%s, server %s)\n", entry.Path, state, entry.Server)
		fmt.Printf("  started: %s\n", entry.StartTime.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("  records: %d, %d bytes\n", entry.Records, entry.SizeBytes)
	}
}
