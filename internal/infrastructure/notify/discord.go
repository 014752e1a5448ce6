package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jesmann/epgmerge/internal/application/dto"
	"github.com/jesmann/epgmerge/internal/domain/model/job"
	"github.com/jesmann/epgmerge/internal/domain/repository"
)

// Embed accent colors, Discord's decimal RGB convention
const (
	colorGreen = 3066993
	colorRed   = 15158332
	colorAmber = 15105570
)

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Timestamp   string       `json:"timestamp"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

type webhookPayload struct {
	Content string  `json:"content"`
	Embeds  []embed `json:"embeds"`
}

// DiscordNotifier posts job outcomes to a Discord webhook. The webhook URL
// is read from settings on every delivery so changes apply immediately; an
// empty URL disables delivery.
type DiscordNotifier struct {
	client   *http.Client
	settings repository.SettingsRepository

	infoLog func(format string, args ...interface{})
	warnLog func(format string, args ...interface{})
}

// NewDiscordNotifier creates the notifier. client may be nil, in which case
// a client with a 10 second timeout is used.
func NewDiscordNotifier(
	client *http.Client,
	settings repository.SettingsRepository,
	infoLog, warnLog func(format string, args ...interface{}),
) *DiscordNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DiscordNotifier{
		client:   client,
		settings: settings,
		infoLog:  infoLog,
		warnLog:  warnLog,
	}
}

// Notify delivers one event to the configured webhook
func (n *DiscordNotifier) Notify(ctx context.Context, ev dto.JobEvent) error {
	url, err := n.settings.Get(ctx, dto.KeyDiscordWebhook, "")
	if err != nil {
		return fmt.Errorf("read webhook setting: %w", err)
	}
	if url == "" {
		return nil
	}

	payload := webhookPayload{
		Content: "**EPG Merge Notification**",
		Embeds:  []embed{buildEmbed(ev)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	n.infoLog("notification %s delivered", ev.EventID)
	return nil
}

func buildEmbed(ev dto.JobEvent) embed {
	var e embed
	e.Timestamp = ev.OccurredAt.Format(time.RFC3339)
	e.Footer.Text = "EPG Merge"

	switch {
	case ev.Kind == dto.EventMetadataInconsistency:
		e.Title = "Metadata Inconsistency Detected"
		e.Description = "The merged file and its metadata index disagree; manual review needed"
		e.Color = colorAmber
		e.Fields = []embedField{{Name: "Detail", Value: orUnknown(ev.Error), Inline: false}}

	case ev.Status == job.StatusSuccess:
		e.Title = "Scheduled Merge Completed"
		e.Description = "The automated EPG merge has completed successfully"
		e.Color = colorGreen
		var channels, programs, size int64
		if s := ev.Summary; s != nil {
			channels, programs, size = int64(s.Channels), int64(s.Programs), s.SizeBytes
		}
		e.Fields = []embedField{
			{Name: "Channels", Value: fmt.Sprintf("%d", channels), Inline: true},
			{Name: "Programs", Value: fmt.Sprintf("%d", programs), Inline: true},
			{Name: "File Size", Value: formatSize(size), Inline: true},
			{Name: "Execution Time", Value: fmt.Sprintf("%.1fs", ev.ExecutedIn.Seconds()), Inline: true},
		}

	case ev.Status == job.StatusCancelled:
		e.Title = "Scheduled Merge Cancelled"
		e.Description = "The EPG merge was cancelled before completion"
		e.Color = colorAmber
		e.Fields = []embedField{{Name: "Job", Value: ev.JobID, Inline: false}}

	default:
		e.Title = "Scheduled Merge Failed"
		e.Description = "The automated EPG merge encountered an error"
		e.Color = colorRed
		e.Fields = []embedField{{Name: "Error", Value: orUnknown(ev.Error), Inline: false}}
	}
	return e
}

func formatSize(b int64) string {
	return fmt.Sprintf("%.2fMB", float64(b)/(1<<20))
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown error"
	}
	return s
}
