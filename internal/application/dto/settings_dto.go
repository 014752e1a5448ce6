package dto

import (
	"encoding/json"
	"strconv"
	"time"
)

// Settings table keys. List-valued settings are stored JSON-encoded.
const (
	KeySelectedSources   = "selected_sources"
	KeySelectedChannels  = "selected_channels"
	KeySelectedTimeframe = "selected_timeframe"
	KeyFeedType          = "selected_feed_type"
	KeyOutputFilename    = "output_filename"
	KeyMergeSchedule     = "merge_schedule"
	KeyMergeTime         = "merge_time"
	KeyMergeDays         = "merge_days"
	KeyArchiveRetention  = "archive_retention"
	KeyRetentionCleanup  = "retention_cleanup_enabled"
	KeyDiscordWebhook    = "discord_webhook"
	KeyDownloadTimeout   = "download_timeout"
	KeyMergeTimeout      = "merge_timeout"
	KeyChannelDropLimit  = "channel_drop_threshold"
)

// MergeSettings is the typed view of the operational settings read fresh at
// the start of each job and each scheduler tick
type MergeSettings struct {
	Sources              []string
	Channels             []string
	TimeframeDays        int
	FeedType             string
	OutputFilename       string
	ScheduleFrequency    string
	ScheduleTime         string
	ScheduleDays         []int
	RetentionDays        int
	RetentionCleanup     bool
	DiscordWebhook       string
	DownloadTimeout      time.Duration
	MergeTimeout         time.Duration
	ChannelDropThreshold int // max tolerated % of selected channels missing from the result; 0 disables
}

// ParseMergeSettings builds MergeSettings from the raw settings map,
// applying the defaults the original deployment shipped with
func ParseMergeSettings(raw map[string]string) MergeSettings {
	s := MergeSettings{
		Sources:              parseStringList(raw[KeySelectedSources]),
		Channels:             parseStringList(raw[KeySelectedChannels]),
		TimeframeDays:        parseInt(raw[KeySelectedTimeframe], 3),
		FeedType:             orDefault(raw[KeyFeedType], "iptv"),
		OutputFilename:       orDefault(raw[KeyOutputFilename], "merged.xml.gz"),
		ScheduleFrequency:    orDefault(raw[KeyMergeSchedule], "daily"),
		ScheduleTime:         orDefault(raw[KeyMergeTime], "00:00"),
		ScheduleDays:         parseIntList(raw[KeyMergeDays]),
		RetentionDays:        parseInt(raw[KeyArchiveRetention], 30),
		RetentionCleanup:     parseBool(raw[KeyRetentionCleanup], true),
		DiscordWebhook:       raw[KeyDiscordWebhook],
		DownloadTimeout:      time.Duration(parseInt(raw[KeyDownloadTimeout], 120)) * time.Second,
		MergeTimeout:         time.Duration(parseInt(raw[KeyMergeTimeout], 300)) * time.Second,
		ChannelDropThreshold: parseInt(raw[KeyChannelDropLimit], 0),
	}
	return s
}

// MergeRequest derives the pipeline request from the settings
func (s MergeSettings) MergeRequest() MergeRequest {
	return MergeRequest{
		Sources:        s.Sources,
		Channels:       s.Channels,
		TimeframeDays:  s.TimeframeDays,
		FeedType:       s.FeedType,
		OutputFilename: s.OutputFilename,
	}
}

func parseStringList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil
	}
	return out
}

func parseIntList(v string) []int {
	if v == "" {
		return nil
	}
	var out []int
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil
	}
	return out
}

func parseInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(v string, fallback bool) bool {
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
