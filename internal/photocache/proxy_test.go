package photocache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildProxyURL(t *testing.T) {
	url := BuildProxyURL("https://api.test.local/functions/v1/proxy-google-image", "ChIJ_abc123", 800)
	assert.Equal(t, "https://api.test.local/functions/v1/proxy-google-image?ref=ChIJ_abc123&maxWidth=800", url)
}

func TestBuildProxyURLEscapesReference(t *testing.T) {
	url := BuildProxyURL("https://api.test.local/proxy", "ref with/odd&chars", 400)
	assert.Equal(t, "https://api.test.local/proxy?ref=ref+with%2Fodd%26chars&maxWidth=400", url)
}

func TestBuildProxyURLDeterministic(t *testing.T) {
	a := BuildProxyURL("https://api.test.local/proxy", "ChIJ_abc", 1200)
	b := BuildProxyURL("https://api.test.local/proxy", "ChIJ_abc", 1200)
	assert.Equal(t, a, b)
}
