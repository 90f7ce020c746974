package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate("Hi {{ title .name }},\n{{ bullets .points }}\n{{ default \"Regards\" .sig }}", map[string]any{
		"name":   "ALICE",
		"points": []string{"one", "two"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Alice,\n- one\n- two\nRegards", out)

	_, err = RenderTemplate("{{ .x ", nil)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hel", Truncate("hello", 3))
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "", Truncate("hello", 0))
	assert.Equal(t, "a", Truncate("aé", 2), "never split a rune")
}

func TestFit(t *testing.T) {
	assert.Equal(t, "hel", Fit("hello", 3))
	assert.Equal(t, "hi", Fit("hi", 5), "short input is not padded")
	assert.Equal(t, "a ", Fit("aé", 2), "a split rune is replaced by padding")
	assert.Equal(t, "", Fit("hello", 0))
}
