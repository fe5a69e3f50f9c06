package sites

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSupported(t *testing.T) {
	enabled := map[string]bool{
		"youtube": true,
		"twitter": true,
		"vimeo":   false,
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "youtube watch", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: true},
		{name: "youtube short link", url: "https://youtu.be/dQw4w9WgXcQ", want: true},
		{name: "mobile subdomain", url: "https://m.youtube.com/watch?v=abc", want: true},
		{name: "upper case host", url: "HTTPS://YOUTUBE.COM/watch?v=abc", want: true},
		{name: "x.com maps to twitter", url: "https://x.com/user/status/1", want: true},
		{name: "disabled site", url: "https://vimeo.com/12345", want: false},
		{name: "site missing from config", url: "https://www.reddit.com/r/videos", want: false},
		{name: "unknown host", url: "https://example.com/video.mp4", want: false},
		{name: "lookalike host", url: "https://notyoutube.com/watch?v=abc", want: false},
		{name: "suffix inside path", url: "https://evil.example/youtube.com", want: false},
		{name: "plain text", url: "hello there", want: false},
		{name: "malformed", url: "http://[::1", want: false},
		{name: "empty", url: "", want: false},
		{name: "non http scheme", url: "ftp://youtube.com/file", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSupported(tt.url, enabled))
		})
	}
}

func TestMatch(t *testing.T) {
	site, ok := Match("https://clips.twitch.tv/abc")
	assert.True(t, ok)
	assert.Equal(t, "twitch", site)

	_, ok = Match("://broken")
	assert.False(t, ok)
}

func TestEnabledSites(t *testing.T) {
	got := EnabledSites(map[string]bool{
		"youtube": true,
		"tiktok":  true,
		"vimeo":   false,
		"myspace": true,
	})

	assert.Equal(t, []string{"tiktok", "youtube"}, got)
	assert.Empty(t, EnabledSites(nil))
}
