package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	recordingplayer "ballancemmo/relay/tools/recording_player"
)

type headerView struct {
	ServerVersion  string    `json:"server_version"`
	Compressed     bool      `json:"compressed"`
	StartTime      time.Time `json:"start_time"`
	StartTimestamp int64     `json:"start_timestamp"`
}

func main() {
	path := flag.String("path", "", "path to a flight recording (.bin or .bin.zst)")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	header, frames, err := recordingplayer.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	payload := struct {
		Header headerView              `json:"header"`
		Frames []recordingplayer.Frame `json:"frames"`
	}{
		Header: headerView{
			ServerVersion:  header.ServerVersion.String(),
			Compressed:     header.Compressed,
			StartTime:      header.StartTime,
			StartTimestamp: header.StartTimestamp,
		},
		Frames: frames,
	}

	//1.- Render the recording as JSON so callers can pipe the output elsewhere.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
