package platform

import (
	"strings"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
)

const settingThreadNumbering = "thread_numbering"

func (a adapter) Adapt(post Post) ([]models.PlatformPayload, error) {
	if err := ValidateMedia(a.name, a.rules, post.Media); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(post.Text)
	if text == "" && len(post.Media) == 0 {
		return nil, common.Validation("%s: content is empty", a.name)
	}

	settings := MergeSettings(a.rules.Defaults, post.Settings)
	if a.prepare != nil {
		if err := a.prepare(text, settings); err != nil {
			return nil, err
		}
	}

	var chunks []string
	switch {
	case runeLen(text) <= a.rules.CharLimit:
		chunks = []string{text}
	case a.rules.Overflow == OverflowThread:
		numbering, _ := settings[settingThreadNumbering].(bool)
		chunks = SplitThread(text, a.rules.CharLimit, numbering)
	default:
		chunks = []string{Truncate(text, a.rules.CharLimit)}
	}

	mediaIDs := make([]string, 0, len(post.Media))
	for _, m := range post.Media {
		mediaIDs = append(mediaIDs, m.ID)
	}

	payloads := make([]models.PlatformPayload, len(chunks))
	for i, chunk := range chunks {
		payloads[i] = models.PlatformPayload{
			Text:     chunk,
			Settings: settings,
			Total:    len(chunks),
		}
		if i == 0 && len(mediaIDs) > 0 {
			payloads[i].MediaIDs = mediaIDs
		}
	}
	return payloads, nil
}

// ValidateMedia applies a platform's media-combination rules. It is pure and
// runs both when adapting and when media is attached to a group.
func ValidateMedia(name Name, rules Rules, media []*models.MediaReference) error {
	images, videos := CountMedia(media)

	if videos > 0 && images > 0 {
		return common.Validation("%s: video cannot be combined with images", name)
	}
	if videos > 1 {
		return common.Validation("%s: only one video may be attached", name)
	}
	if rules.MediaRequired && images+videos == 0 {
		if rules.MaxImages == 0 {
			return common.Validation("%s requires a video", name)
		}
		return common.Validation("%s requires media", name)
	}
	if videos > 0 && !rules.AllowsVideo {
		return common.Validation("%s does not accept video", name)
	}
	if images > 0 && rules.MaxImages == 0 {
		return common.Validation("%s does not accept images", name)
	}
	if images > rules.MaxImages {
		return common.Validation("%s accepts at most %d images, got %d", name, rules.MaxImages, images)
	}
	return nil
}

func CountMedia(media []*models.MediaReference) (images, videos int) {
	for _, m := range media {
		switch m.Kind {
		case models.MediaKindImage:
			images++
		case models.MediaKindVideo:
			videos++
		}
	}
	return images, videos
}

// AdaptFor resolves the platform and adapts the post in one call.
func AdaptFor(name string, post Post) ([]models.PlatformPayload, error) {
	a, ok := Lookup(name)
	if !ok {
		return nil, unsupported(name)
	}
	return a.Adapt(post)
}
