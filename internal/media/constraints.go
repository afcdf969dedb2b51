package media

import (
	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
)

// CheckForPlatform is the last gate before a platform post is handed to an
// outbound client. It only looks at the given platform's rules, so a failure
// here never affects sibling platforms.
func CheckForPlatform(a platform.Adapter, refs []*models.MediaReference) error {
	rules := a.Rules()
	name := a.Name()

	for _, m := range refs {
		switch m.Status {
		case models.MediaStatusReady:
		case models.MediaStatusFailed:
			return common.Validation("%s: media %s failed processing: %s", name, m.ID, m.ErrorMessage)
		default:
			return common.Validation("%s: media %s has not finished uploading", name, m.ID)
		}

		if m.Kind == models.MediaKindImage && rules.RejectsWebP && m.IsWebP() && m.ConvertedURL == "" {
			return common.Validation("%s: media %s is webp and has no jpeg conversion", name, m.ID)
		}

		if m.Kind == models.MediaKindVideo {
			if err := checkVideo(name, rules.Video, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkVideo(name platform.Name, rules platform.VideoRules, m *models.MediaReference) error {
	meta := m.Metadata
	if meta == nil {
		if rules == (platform.VideoRules{}) {
			return nil
		}
		return common.Validation("%s: video %s has no metadata", name, m.ID)
	}

	if rules.MinFrameRate > 0 && meta.FrameRate < rules.MinFrameRate {
		return common.Validation("%s: video frame rate %.2f fps is below the minimum of %.0f fps", name, meta.FrameRate, rules.MinFrameRate)
	}
	if rules.MaxFrameRate > 0 && meta.FrameRate > rules.MaxFrameRate {
		return common.Validation("%s: video frame rate %.2f fps exceeds the maximum of %.0f fps", name, meta.FrameRate, rules.MaxFrameRate)
	}
	if rules.MinDuration > 0 && meta.Duration < rules.MinDuration {
		return common.Validation("%s: video is %.2fs, shorter than the minimum of %.0fs", name, meta.Duration, rules.MinDuration)
	}
	if rules.MaxDuration > 0 && meta.Duration > rules.MaxDuration {
		return common.Validation("%s: video is %.2fs, longer than the maximum of %.0fs", name, meta.Duration, rules.MaxDuration)
	}
	return nil
}
