package templating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_Substitution(t *testing.T) {
	out := RenderHTML("Hi {{first_name}}, welcome {{ restaurant_name }}!", map[string]string{
		"first_name":      "Ana",
		"restaurant_name": "Pho Saigon",
	})
	assert.Equal(t, "Hi Ana, welcome Pho Saigon!", out)
}

func TestRender_MissingVariableBecomesEmpty(t *testing.T) {
	out := RenderHTML("Hello {{name}}{{missing}}.", map[string]string{"name": "Bo"})
	assert.Equal(t, "Hello Bo.", out)
}

func TestRender_EscapesHTMLByDefault(t *testing.T) {
	vars := map[string]string{"name": `<script>alert("x")</script> & Co`}

	escaped := Render("<p>{{name}}</p>", vars, Options{})
	assert.Equal(t, "<p>&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt; &amp; Co</p>", escaped)

	raw := Render("<p>{{name}}</p>", vars, Options{DisableEscaping: true})
	assert.Equal(t, `<p><script>alert("x")</script> & Co</p>`, raw)
}

func TestRender_TemplateMarkupIsNotEscaped(t *testing.T) {
	out := RenderHTML(`<a href="{{url}}">link</a>`, map[string]string{"url": "https://ekaty.com/?a=1&b=2"})
	assert.Equal(t, `<a href="https://ekaty.com/?a=1&amp;b=2">link</a>`, out)
}

func TestRender_RepeatedAndNoPlaceholders(t *testing.T) {
	assert.Equal(t, "x-x", RenderText("{{v}}-{{v}}", map[string]string{"v": "x"}))
	assert.Equal(t, "plain text", RenderText("plain text", nil))
	assert.Equal(t, "{{ not closed", RenderText("{{ not closed", nil))
}

func TestVariablesAndMissing(t *testing.T) {
	tmpl := "{{b}} {{a}} {{ b }} {{c}}"
	assert.Equal(t, []string{"a", "b", "c"}, Variables(tmpl))
	assert.Equal(t, []string{"c"}, Missing(tmpl, map[string]string{"a": "1", "b": "2"}))
}
