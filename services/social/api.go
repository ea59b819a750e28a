package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codequiz-publisher/pkg/errutil"
)

// apiDescriptor captures how one platform's native API is driven: where to
// post, how to shape the request and how to read the remote id back.
type apiDescriptor struct {
	defaultBase string
	build       func(base string, creds SocialMediaCredentials, req PublishRequest) (*http.Request, error)
	parseID     func(body []byte) (string, error)
	postURL     func(id string, creds SocialMediaCredentials) string
}

var apiDescriptors = map[Platform]apiDescriptor{
	Pinterest: {
		defaultBase: "https://api.pinterest.com",
		build: func(base string, creds SocialMediaCredentials, req PublishRequest) (*http.Request, error) {
			payload := map[string]any{
				"link":  req.Link,
				"title": req.Topic,
				"media_source": map[string]string{
					"source_type": "image_url",
					"url":         req.ImageURL,
				},
				"description": req.Caption,
			}
			return jsonRequest(base+"/v5/pins", creds, payload)
		},
		parseID: parseTopLevelID,
		postURL: func(id string, _ SocialMediaCredentials) string {
			return "https://www.pinterest.com/pin/" + id + "/"
		},
	},
	YouTubeShorts: {
		defaultBase: "https://www.googleapis.com",
		build: func(base string, creds SocialMediaCredentials, req PublishRequest) (*http.Request, error) {
			payload := map[string]any{
				"snippet": map[string]any{
					"title":       req.Topic,
					"description": req.Caption + "\n" + req.Link,
				},
				"status":    map[string]string{"privacyStatus": "public"},
				"video_url": req.VideoURL,
			}
			return jsonRequest(base+"/upload/youtube/v3/videos?part=snippet,status", creds, payload)
		},
		parseID: parseTopLevelID,
		postURL: func(id string, _ SocialMediaCredentials) string {
			return "https://www.youtube.com/shorts/" + id
		},
	},
	YandexDzen: {
		defaultBase: "https://zen.yandex.ru/api/v3",
		build: func(base string, creds SocialMediaCredentials, req PublishRequest) (*http.Request, error) {
			payload := map[string]any{
				"title":     req.Topic,
				"text":      req.Caption,
				"image_url": req.ImageURL,
				"link":      req.Link,
			}
			return jsonRequest(base+"/publications", creds, payload)
		},
		parseID: parseTopLevelID,
		postURL: func(id string, creds SocialMediaCredentials) string {
			return "https://dzen.ru/id/" + creds.Username + "/" + id
		},
	},
	Facebook: {
		defaultBase: "https://graph.facebook.com/v19.0",
		build:       buildFacebookPhoto,
		parseID:     parseTopLevelID,
		postURL: func(id string, _ SocialMediaCredentials) string {
			return "https://www.facebook.com/" + id
		},
	},
	FacebookReels: {
		defaultBase: "https://graph.facebook.com/v19.0",
		build: func(base string, creds SocialMediaCredentials, req PublishRequest) (*http.Request, error) {
			form := url.Values{}
			form.Set("file_url", req.VideoURL)
			form.Set("description", req.Caption)
			form.Set("access_token", token(creds))
			return formRequest(base+"/me/videos", form)
		},
		parseID: parseTopLevelID,
		postURL: func(id string, _ SocialMediaCredentials) string {
			return "https://www.facebook.com/reel/" + id
		},
	},
	FacebookStories: {
		defaultBase: "https://graph.facebook.com/v19.0",
		build:       buildFacebookPhoto,
		parseID:     parseTopLevelID,
		postURL: func(id string, _ SocialMediaCredentials) string {
			return "https://www.facebook.com/stories/" + id
		},
	},
	Twitter: {
		defaultBase: "https://api.twitter.com",
		build: func(base string, creds SocialMediaCredentials, req PublishRequest) (*http.Request, error) {
			payload := map[string]any{
				"text": strings.TrimSpace(req.Caption + "\n" + req.Link),
			}
			return jsonRequest(base+"/2/tweets", creds, payload)
		},
		parseID: func(body []byte) (string, error) {
			var out struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &out); err != nil || out.Data.ID == "" {
				return "", fmt.Errorf("no tweet id in response")
			}
			return out.Data.ID, nil
		},
		postURL: func(id string, creds SocialMediaCredentials) string {
			return "https://x.com/" + creds.Username + "/status/" + id
		},
	},
}

func buildFacebookPhoto(base string, creds SocialMediaCredentials, req PublishRequest) (*http.Request, error) {
	form := url.Values{}
	form.Set("url", req.ImageURL)
	form.Set("caption", req.Caption)
	form.Set("access_token", token(creds))
	return formRequest(base+"/me/photos", form)
}

func token(creds SocialMediaCredentials) string {
	if creds.AccessToken == nil {
		return ""
	}
	return *creds.AccessToken
}

func jsonRequest(endpoint string, creds SocialMediaCredentials, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(creds))
	return req, nil
}

func formRequest(endpoint string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func parseTopLevelID(body []byte) (string, error) {
	var out struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID.String() == "" {
		return "", fmt.Errorf("no id in response")
	}
	return out.ID.String(), nil
}

// APISupported reports whether a platform has a native API descriptor.
func APISupported(platform Platform) bool {
	_, ok := apiDescriptors[platform]
	return ok
}

type apiBackend struct {
	platform Platform
	creds    SocialMediaCredentials
	desc     apiDescriptor
	client   *http.Client
}

func newAPIBackend(platform Platform, creds SocialMediaCredentials, timeout time.Duration) (*apiBackend, error) {
	desc, ok := apiDescriptors[platform]
	if !ok {
		return nil, errutil.InvalidInput(fmt.Sprintf("no API descriptor for %s", platform))
	}
	return &apiBackend{
		platform: platform,
		creds:    creds,
		desc:     desc,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (b *apiBackend) Kind() Method { return MethodAPI }

func (b *apiBackend) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	base := b.creds.APIBaseURL
	if base == "" {
		base = b.desc.defaultBase
	}

	httpReq, err := b.desc.build(base, b.creds, req)
	if err != nil {
		return nil, errutil.InvalidInput("build API request", errutil.WithErr(err))
	}
	httpReq = httpReq.WithContext(ctx)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, errutil.TransientNetwork("API request failed", errutil.WithErr(err))
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	body.ReadFrom(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyHTTPStatus(resp, string(b.platform)+" API")
	}

	id, err := b.desc.parseID(body.Bytes())
	if err != nil {
		return nil, errutil.InvalidInput("parse API response", errutil.WithErr(err))
	}
	return &PublishResult{
		PostID:  id,
		PostURL: b.desc.postURL(id, b.creds),
	}, nil
}
