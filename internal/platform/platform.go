// Package platform holds the closed registry of supported publishing targets
// and the pure transformations that turn one canonical post into
// platform-ready payload units. Nothing in this package performs I/O.
package platform

import (
	"sort"
	"strings"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
)

type Name string

const (
	X         Name = "x"
	Threads   Name = "threads"
	Bluesky   Name = "bluesky"
	Mastodon  Name = "mastodon"
	LinkedIn  Name = "linkedin"
	Facebook  Name = "facebook"
	Instagram Name = "instagram"
	TikTok    Name = "tiktok"
	YouTube   Name = "youtube"
	Pinterest Name = "pinterest"
)

// Overflow decides what happens to text longer than the character limit.
type Overflow int

const (
	OverflowTruncate Overflow = iota
	OverflowThread
)

// VideoRules are checked against extracted metadata right before publishing.
// Zero values mean "no constraint".
type VideoRules struct {
	MinFrameRate float64
	MaxFrameRate float64
	MinDuration  float64
	MaxDuration  float64
}

type Rules struct {
	CharLimit     int
	Overflow      Overflow
	MediaRequired bool
	MaxImages     int
	AllowsVideo   bool
	RejectsWebP   bool
	Video         VideoRules
	Defaults      map[string]any
}

// Post is the canonical, platform-neutral input to an adapter.
type Post struct {
	Text     string
	Media    []*models.MediaReference
	Settings map[string]any
}

// Adapter is the capability every platform exposes.
type Adapter interface {
	Name() Name
	Rules() Rules
	Adapt(post Post) ([]models.PlatformPayload, error)
}

type adapter struct {
	name    Name
	rules   Rules
	prepare func(text string, settings map[string]any) error
}

func (a adapter) Name() Name   { return a.name }
func (a adapter) Rules() Rules { return a.rules }

var registry = map[Name]Adapter{
	X: adapter{name: X, rules: Rules{
		CharLimit: 280, Overflow: OverflowThread, MaxImages: 4, AllowsVideo: true,
	}},
	Threads: adapter{name: Threads, rules: Rules{
		CharLimit: 500, Overflow: OverflowThread, MaxImages: 10, AllowsVideo: true,
	}},
	Bluesky: adapter{name: Bluesky, rules: Rules{
		CharLimit: 300, Overflow: OverflowThread, MaxImages: 4, AllowsVideo: true,
		Video: VideoRules{MaxDuration: 60},
	}},
	Mastodon: adapter{name: Mastodon, rules: Rules{
		CharLimit: 500, Overflow: OverflowThread, MaxImages: 4, AllowsVideo: true,
		Defaults: map[string]any{"visibility": "public"},
	}},
	LinkedIn: adapter{name: LinkedIn, rules: Rules{
		CharLimit: 3000, Overflow: OverflowTruncate, MaxImages: 9, AllowsVideo: true,
		Defaults: map[string]any{"visibility": "PUBLIC"},
	}},
	Facebook: adapter{name: Facebook, rules: Rules{
		CharLimit: 63206, Overflow: OverflowTruncate, MaxImages: 10, AllowsVideo: true,
	}},
	Instagram: adapter{name: Instagram, rules: Rules{
		CharLimit: 2200, Overflow: OverflowTruncate, MediaRequired: true, MaxImages: 10,
		AllowsVideo: true, RejectsWebP: true,
		Video:    VideoRules{MinFrameRate: 23, MaxFrameRate: 60, MinDuration: 3, MaxDuration: 900},
		Defaults: map[string]any{"share_to_feed": true},
	}},
	TikTok: adapter{name: TikTok, rules: Rules{
		CharLimit: 2200, Overflow: OverflowTruncate, MediaRequired: true, MaxImages: 35,
		AllowsVideo: true, RejectsWebP: true,
		Video: VideoRules{MinFrameRate: 23, MinDuration: 3, MaxDuration: 600},
		Defaults: map[string]any{
			"privacy_level":   "PUBLIC_TO_EVERYONE",
			"disable_comment": false,
			"disable_duet":    false,
			"disable_stitch":  false,
		},
	}},
	YouTube: adapter{name: YouTube, rules: Rules{
		CharLimit: 5000, Overflow: OverflowTruncate, MediaRequired: true, MaxImages: 0,
		AllowsVideo: true,
		Video:       VideoRules{MinDuration: 1},
		Defaults:    map[string]any{"privacy_status": "public", "category_id": "22"},
	}, prepare: prepareYouTube},
	Pinterest: adapter{name: Pinterest, rules: Rules{
		CharLimit: 500, Overflow: OverflowTruncate, MediaRequired: true, MaxImages: 1,
		AllowsVideo: true, RejectsWebP: true,
		Video: VideoRules{MinDuration: 4},
	}, prepare: preparePinterest},
}

// Lookup returns the adapter registered for a platform identifier.
func Lookup(name string) (Adapter, bool) {
	a, ok := registry[Name(strings.ToLower(strings.TrimSpace(name)))]
	return a, ok
}

func Supported(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Names lists the registered platforms in a stable order.
func Names() []Name {
	names := make([]Name, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ImageCap is the largest image count every image-capable target accepts.
// Video-only targets are skipped; they reject images when adapting instead.
// Returns 0 when no target accepts images.
func ImageCap(names []string) int {
	limit := 0
	for _, n := range names {
		a, ok := Lookup(n)
		if !ok || a.Rules().MaxImages == 0 {
			continue
		}
		if limit == 0 || a.Rules().MaxImages < limit {
			limit = a.Rules().MaxImages
		}
	}
	return limit
}

func prepareYouTube(text string, settings map[string]any) error {
	title, _ := settings["title"].(string)
	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	}
	if title == "" {
		return common.Validation("youtube requires a title")
	}
	settings["title"] = Truncate(title, 100)
	return nil
}

func preparePinterest(_ string, settings map[string]any) error {
	board, _ := settings["board_id"].(string)
	if strings.TrimSpace(board) == "" {
		return common.Validation("pinterest requires a board_id setting")
	}
	return nil
}

// MergeSettings overlays caller settings on platform defaults. Caller values win.
func MergeSettings(defaults, caller map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(caller))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range caller {
		merged[k] = v
	}
	return merged
}

func (n Name) String() string { return string(n) }

func unsupported(name string) error {
	return common.Validation("unsupported platform %q", name)
}
