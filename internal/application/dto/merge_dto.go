package dto

import "io"

// MergeRequest describes one merge pipeline run: which sources to fetch and
// how to filter them
type MergeRequest struct {
	Sources        []string
	Channels       []string
	TimeframeDays  int
	FeedType       string
	OutputFilename string
}

// FetchResult lists the source files the download phase produced
type FetchResult struct {
	Files []string
}

// MergeResult summarizes a completed merge. Output streams the merged
// artifact exactly once; closing it releases the engine's working file.
type MergeResult struct {
	Output    io.ReadCloser
	Channels  int
	Programs  int
	SizeBytes int64
}
