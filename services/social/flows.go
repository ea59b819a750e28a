package social

import (
	"github.com/chromedp/chromedp"
)

// browserFlow describes one platform's web upload as an ordered step table.
// Selectors drift when platforms redesign; keeping them here means a flow
// fix never touches the driver.
type browserFlow struct {
	home             string
	loggedInSelector string
	loginMarker      string
	errorBanner      string
	wantsVideo       bool
	steps            []flowStep
}

// flowStep is one interaction. Skippable steps cover intermediate screens
// (crop, filters) that some platform variants omit.
type flowStep struct {
	name      string
	skippable bool
	action    func(req PublishRequest, mediaPath string) chromedp.Tasks
}

func clickStep(name, selector string, skippable bool) flowStep {
	return flowStep{
		name:      name,
		skippable: skippable,
		action: func(_ PublishRequest, _ string) chromedp.Tasks {
			return chromedp.Tasks{
				chromedp.WaitVisible(selector, chromedp.ByQuery),
				chromedp.Click(selector, chromedp.ByQuery),
			}
		},
	}
}

func uploadStep(name, selector string) flowStep {
	return flowStep{
		name: name,
		action: func(_ PublishRequest, mediaPath string) chromedp.Tasks {
			return chromedp.Tasks{
				chromedp.WaitReady(selector, chromedp.ByQuery),
				chromedp.SetUploadFiles(selector, []string{mediaPath}, chromedp.ByQuery),
			}
		},
	}
}

func captionStep(name, selector string) flowStep {
	return flowStep{
		name: name,
		action: func(req PublishRequest, _ string) chromedp.Tasks {
			return chromedp.Tasks{
				chromedp.WaitVisible(selector, chromedp.ByQuery),
				chromedp.Click(selector, chromedp.ByQuery),
				chromedp.SendKeys(selector, req.Caption, chromedp.ByQuery),
			}
		},
	}
}

var browserFlows = map[Platform]browserFlow{
	Instagram: {
		home:             "https://www.instagram.com/",
		loggedInSelector: `svg[aria-label="New post"]`,
		loginMarker:      "/accounts/login",
		errorBanner:      `div[role="alert"]`,
		steps: []flowStep{
			clickStep("open composer", `svg[aria-label="New post"]`, false),
			uploadStep("select media", `input[type="file"]`),
			clickStep("crop next", `div[role="dialog"] div[role="button"]`, true),
			clickStep("filters next", `div[role="dialog"] div[role="button"]`, true),
			captionStep("caption", `div[aria-label="Write a caption..."]`),
			clickStep("share", `div[role="dialog"] div[role="button"]`, false),
		},
	},
	InstagramReels: {
		home:             "https://www.instagram.com/",
		loggedInSelector: `svg[aria-label="New post"]`,
		loginMarker:      "/accounts/login",
		errorBanner:      `div[role="alert"]`,
		wantsVideo:       true,
		steps: []flowStep{
			clickStep("open composer", `svg[aria-label="New post"]`, false),
			uploadStep("select video", `input[type="file"]`),
			clickStep("cover next", `div[role="dialog"] div[role="button"]`, true),
			clickStep("trim next", `div[role="dialog"] div[role="button"]`, true),
			captionStep("caption", `div[aria-label="Write a caption..."]`),
			clickStep("share", `div[role="dialog"] div[role="button"]`, false),
		},
	},
	InstagramStories: {
		home:             "https://www.instagram.com/",
		loggedInSelector: `svg[aria-label="New post"]`,
		loginMarker:      "/accounts/login",
		errorBanner:      `div[role="alert"]`,
		steps: []flowStep{
			clickStep("open story composer", `svg[aria-label="New story"]`, false),
			uploadStep("select media", `input[type="file"]`),
			clickStep("share to story", `button[type="button"]`, false),
		},
	},
	TikTok: {
		home:             "https://www.tiktok.com/upload",
		loggedInSelector: `input[type="file"]`,
		loginMarker:      "/login",
		errorBanner:      `div[class*="error-msg"]`,
		wantsVideo:       true,
		steps: []flowStep{
			uploadStep("select video", `input[type="file"]`),
			captionStep("caption", `div[contenteditable="true"]`),
			clickStep("toggle advanced", `div[data-e2e="advanced_settings_container"]`, true),
			clickStep("post", `button[data-e2e="post_video_button"]`, false),
		},
	},
	Facebook: {
		home:             "https://www.facebook.com/",
		loggedInSelector: `div[aria-label="Create a post"]`,
		loginMarker:      "/login",
		errorBanner:      `div[role="alert"]`,
		steps: []flowStep{
			clickStep("open composer", `div[aria-label="Create a post"]`, false),
			clickStep("photo/video tab", `div[aria-label="Photo/video"]`, true),
			uploadStep("select media", `input[type="file"]`),
			captionStep("caption", `div[aria-label="What's on your mind?"]`),
			clickStep("post", `div[aria-label="Post"]`, false),
		},
	},
	FacebookReels: {
		home:             "https://www.facebook.com/reels/create",
		loggedInSelector: `input[type="file"]`,
		loginMarker:      "/login",
		errorBanner:      `div[role="alert"]`,
		wantsVideo:       true,
		steps: []flowStep{
			uploadStep("select video", `input[type="file"]`),
			clickStep("next", `div[aria-label="Next"]`, true),
			clickStep("next", `div[aria-label="Next"]`, true),
			captionStep("caption", `div[contenteditable="true"]`),
			clickStep("publish", `div[aria-label="Publish"]`, false),
		},
	},
	FacebookStories: {
		home:             "https://www.facebook.com/stories/create",
		loggedInSelector: `input[type="file"]`,
		loginMarker:      "/login",
		errorBanner:      `div[role="alert"]`,
		steps: []flowStep{
			uploadStep("select media", `input[type="file"]`),
			clickStep("share to story", `div[aria-label="Share to story"]`, false),
		},
	},
}

// BrowserSupported reports whether a platform has a web upload flow.
func BrowserSupported(platform Platform) bool {
	_, ok := browserFlows[platform]
	return ok
}
