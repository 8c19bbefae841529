package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHTML_Invariant9(t *testing.T) {
	in := `<b>X</b><script>Y</script><span class="tg-spoiler">Z</span>`
	want := `<b>X</b>Y<tg-spoiler>Z</tg-spoiler>`
	assert.Equal(t, want, SanitizeHTML(in))
}

func TestSanitizeHTML_BrBecomesNewline(t *testing.T) {
	assert.Equal(t, "a\nb", SanitizeHTML("a<br>b"))
	assert.Equal(t, "a\nb", SanitizeHTML("a<br/>b"))
}

func TestSanitizeHTML_KeepsWhitelistedTags(t *testing.T) {
	in := `<i>hi</i> <code>x</code> <a href="https://x.com">link</a>`
	assert.Equal(t, in, SanitizeHTML(in))
}
