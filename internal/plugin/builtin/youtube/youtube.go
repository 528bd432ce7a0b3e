// Package youtube tracks YouTube viewing activity from browser window titles
// and renders it as display widgets. The sensor reads titles through the
// WindowLister interface; the OS-specific window inspection behind it is
// supplied by the host process.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Floopatron/donk-project/internal/plugin"
	"github.com/Floopatron/donk-project/internal/protocol"
)

func init() {
	plugin.RegisterSensor("YouTubeCollector", func(m *plugin.Manifest) (plugin.Sensor, error) {
		return NewSensor(DefaultWindowLister), nil
	})
	plugin.RegisterRenderer("YouTubeRenderer", func(m *plugin.Manifest) (plugin.Renderer, error) {
		return &Renderer{}, nil
	})
}

// WindowLister enumerates the titles of currently open windows.
type WindowLister interface {
	Titles() ([]string, error)
}

// DefaultWindowLister is what manifest-created sensors read from. It reports
// no windows unless the host process replaces it with a real implementation.
var DefaultWindowLister WindowLister = noopLister{}

type noopLister struct{}

func (noopLister) Titles() ([]string, error) { return nil, nil }

var browsers = []string{"Brave", "Opera", "Chrome", "Firefox", "Edge", "Chromium"}

// Context is the payload this sensor reports while a YouTube window is open.
type Context struct {
	Active                 bool      `json:"active"`
	VideoTitle             string    `json:"video_title"`
	ChannelName            string    `json:"channel_name"`
	VideoPosition          string    `json:"video_position"`
	VideoDuration          string    `json:"video_duration"`
	SessionDurationSeconds int       `json:"session_duration_seconds"`
	Browser                string    `json:"browser"`
	WindowTitle            string    `json:"window_title"`
	DetectedAt             time.Time `json:"detected_at"`
}

// Sensor detects an open YouTube browser window and tracks the viewing
// session across polls.
type Sensor struct {
	lister WindowLister

	mu           sync.Mutex
	sessionStart time.Time
	last         *Context
	wasActive    bool
}

func NewSensor(lister WindowLister) *Sensor {
	return &Sensor{lister: lister}
}

// Collect reports the current viewing context. When YouTube closes it emits
// one inactive payload so the hub retracts the stored context, then stays
// silent until activity resumes. A lister failure returns the last known
// good context.
func (s *Sensor) Collect(ctx context.Context) (any, error) {
	titles, err := s.lister.Titles()
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.last != nil {
			return *s.last, nil
		}
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}

	title := findYouTubeWindow(titles)

	s.mu.Lock()
	defer s.mu.Unlock()

	if title == "" {
		s.sessionStart = time.Time{}
		s.last = nil
		if s.wasActive {
			s.wasActive = false
			return Context{Active: false}, nil
		}
		return nil, nil
	}

	now := time.Now()
	if s.sessionStart.IsZero() {
		s.sessionStart = now
	}

	info := parseWindowTitle(title)
	c := Context{
		Active:                 true,
		VideoTitle:             info.title,
		ChannelName:            info.channel,
		VideoPosition:          info.position,
		VideoDuration:          info.duration,
		SessionDurationSeconds: int(now.Sub(s.sessionStart).Seconds()),
		Browser:                info.browser,
		WindowTitle:            title,
		DetectedAt:             now.UTC(),
	}
	s.last = &c
	s.wasActive = true
	return c, nil
}

// findYouTubeWindow returns the first window title that mentions YouTube in
// a known browser, or "".
func findYouTubeWindow(titles []string) string {
	for _, title := range titles {
		lower := strings.ToLower(title)
		if !strings.Contains(lower, "youtube") {
			continue
		}
		for _, browser := range browsers {
			if strings.Contains(lower, strings.ToLower(browser)) {
				return title
			}
		}
	}
	return ""
}

type titleInfo struct {
	title    string
	channel  string
	position string
	duration string
	browser  string
}

var notificationCount = regexp.MustCompile(`^\(\d+\)\s*`)

// parseWindowTitle extracts video information from a browser window title.
// Typical formats:
//
//	"Video Title - YouTube - Brave"
//	"(123) Video Title - YouTube - Chrome"
//	"Video Title - Channel Name - YouTube - Firefox"
func parseWindowTitle(windowTitle string) titleInfo {
	info := titleInfo{
		title:    "Unknown",
		channel:  "Unknown",
		position: "Unknown",
		duration: "Unknown",
		browser:  "Unknown",
	}

	lower := strings.ToLower(windowTitle)
	for _, browser := range browsers {
		if strings.Contains(lower, strings.ToLower(browser)) {
			info.browser = browser
			break
		}
	}

	title := notificationCount.ReplaceAllString(windowTitle, "")
	parts := strings.Split(title, " - ")

	if len(parts) >= 2 {
		info.title = strings.TrimSpace(parts[0])

		youtubeIndex := -1
		for i, part := range parts {
			if strings.Contains(strings.ToLower(part), "youtube") {
				youtubeIndex = i
				break
			}
		}
		// The part right before "YouTube" is the channel name, unless it is
		// the video title itself.
		if youtubeIndex > 1 {
			info.channel = strings.TrimSpace(parts[youtubeIndex-1])
		}
	}

	if strings.Contains(strings.ToLower(title), "paused") {
		info.position = "Paused"
	}

	return info
}

// Renderer turns a YouTube context payload into label widgets.
type Renderer struct{}

// Render returns an empty widget list for inactive context, making the
// section disappear on the display.
func (r *Renderer) Render(data json.RawMessage) ([]protocol.Widget, error) {
	var c Context
	if len(data) > 0 {
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to parse context: %w", err)
		}
	}
	if !c.Active {
		return []protocol.Widget{}, nil
	}

	title := c.VideoTitle
	if title == "" {
		title = "Unknown Video"
	}
	channel := c.ChannelName
	if channel == "" {
		channel = "Unknown"
	}

	progress := "Playing"
	if c.VideoPosition != "Unknown" && c.VideoPosition != "" &&
		c.VideoDuration != "Unknown" && c.VideoDuration != "" {
		progress = fmt.Sprintf("%s / %s", c.VideoPosition, c.VideoDuration)
	}

	browser := c.Browser
	if browser == "" {
		browser = "Unknown"
	}

	return []protocol.Widget{
		{Type: "label", Text: title, Icon: "🎬", Color: "#FF0000", Size: "large"},
		{Type: "label", Text: fmt.Sprintf("Channel: %s", channel), Icon: "📺", Color: "#888888"},
		{Type: "label", Text: progress, Icon: "⏱️", Color: "#4CAF50"},
		{Type: "label", Text: fmt.Sprintf("Watching for: %s", formatDuration(c.SessionDurationSeconds)), Icon: "⏰", Color: "#2196F3"},
		{Type: "label", Text: fmt.Sprintf("Browser: %s", browser), Icon: "🌐", Color: "#666666"},
	}, nil
}

// formatDuration renders seconds as "1h 23m 45s", "5m 30s", or "42s".
func formatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes, seconds := seconds/60, seconds%60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours, minutes := minutes/60, minutes%60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
