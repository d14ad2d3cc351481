package templating

import (
	"html"
	"regexp"
	"sort"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// Options параметры подстановки
type Options struct {
	// DisableEscaping отключает HTML-экранирование значений (для текстовых писем и SMS)
	DisableEscaping bool
}

// Render заменяет каждое {{var}} значением из vars.
// Отсутствующие переменные заменяются пустой строкой.
func Render(tmpl string, vars map[string]string, opts Options) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v := vars[name]
		if opts.DisableEscaping {
			return v
		}
		return html.EscapeString(v)
	})
}

// RenderHTML подстановка с экранированием
func RenderHTML(tmpl string, vars map[string]string) string {
	return Render(tmpl, vars, Options{})
}

// RenderText подстановка без экранирования
func RenderText(tmpl string, vars map[string]string) string {
	return Render(tmpl, vars, Options{DisableEscaping: true})
}

// Variables возвращает отсортированный список имен переменных шаблона
func Variables(tmpl string) []string {
	seen := map[string]struct{}{}
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		seen[m[1]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Missing возвращает переменные шаблона, которых нет в vars
func Missing(tmpl string, vars map[string]string) []string {
	var out []string
	for _, name := range Variables(tmpl) {
		if _, ok := vars[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
