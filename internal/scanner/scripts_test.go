package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanScripts_Patterns(t *testing.T) {
	t.Parallel()
	theme := t.TempDir()

	writeFile(t, filepath.Join(theme, "a.js"), strings.Join([]string{
		`document.cookie = "pref_theme=dark; path=/";`,
		`setCookie('cart_token', value);`,
		`Cookies.set("newsletter_seen", "1");`,
		`if (document.cookie.indexOf("_gat") > -1) {}`,
		`var x_gax = 1;`,
	}, "\n"))

	s := New(Config{ThemeDir: theme}, nil, nil)
	cookies, err := s.scanScripts(context.Background())
	require.NoError(t, err)

	var names []string
	for _, c := range cookies {
		names = append(names, c.Name)
		assert.Equal(t, SourceScriptScan, c.Source)
		assert.Equal(t, "a.js", c.File)
	}
	assert.ElementsMatch(t, []string{"pref_theme", "cart_token", "newsletter_seen", "_gat"}, names)
}

func TestScanScripts_SkipsMinifiedAndHonorsCaps(t *testing.T) {
	t.Parallel()
	theme := t.TempDir()
	plugins := t.TempDir()

	writeFile(t, filepath.Join(theme, "bundle.min.js"), `setCookie("minified_cookie", 1)`)
	writeFile(t, filepath.Join(theme, "style.css"), `setCookie("css_cookie", 1)`)
	for i := 0; i < 25; i++ {
		writeFile(t, filepath.Join(theme, fmt.Sprintf("f%02d.js", i)), fmt.Sprintf(`setCookie("theme_%02d", 1)`, i))
	}
	for i := 0; i < 8; i++ {
		writeFile(t, filepath.Join(plugins, "mailchimp", fmt.Sprintf("m%d.js", i)), fmt.Sprintf(`setCookie("mc_%d", 1)`, i))
	}
	writeFile(t, filepath.Join(plugins, "not-allowed", "x.js"), `setCookie("ignored_plugin", 1)`)

	s := New(Config{ThemeDir: theme, PluginsDir: plugins}, nil, nil)
	cookies, err := s.scanScripts(context.Background())
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, c := range cookies {
		names[c.Name] = true
	}
	assert.False(t, names["minified_cookie"])
	assert.False(t, names["css_cookie"])
	assert.False(t, names["ignored_plugin"])

	themeCount, pluginCount := 0, 0
	for name := range names {
		switch {
		case strings.HasPrefix(name, "theme_"):
			themeCount++
		case strings.HasPrefix(name, "mc_"):
			pluginCount++
		}
	}
	assert.Equal(t, 20, themeCount)
	assert.Equal(t, 5, pluginCount)
}

func TestScanScripts_MissingDirectories(t *testing.T) {
	t.Parallel()

	s := New(Config{ThemeDir: "/nonexistent/theme", PluginsDir: "/nonexistent/plugins"}, nil, nil)
	cookies, err := s.scanScripts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestLookupKnown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		found    bool
		category string
	}{
		{"_ga", true, "analytics"},
		{"wordpress_logged_in_abc123", true, "necessary"},
		{"wp-settings-7", true, "necessary"},
		{"PHPSESSID", true, "necessary"},
		{"_gax", false, ""},
		{"random", false, ""},
	}
	for _, tt := range tests {
		k, ok := LookupKnown(tt.name)
		assert.Equal(t, tt.found, ok, tt.name)
		assert.Equal(t, tt.category, string(k.Category), tt.name)
	}
}

func TestRedactHeaders(t *testing.T) {
	t.Parallel()

	h := map[string][]string{
		"Set-Cookie":    {"session=abc123; Path=/; HttpOnly", "_ga=GA1.2; Max-Age=10"},
		"Cookie":        {"a=1; b=2"},
		"Authorization": {"Bearer secret"},
		"Content-Type":  {"text/html"},
	}
	got := redactHeaders(h)

	assert.Equal(t, "session=[REDACTED], _ga=[REDACTED]", got["Set-Cookie"])
	assert.Equal(t, "a=[REDACTED]; b=[REDACTED]", got["Cookie"])
	assert.Equal(t, "[REDACTED]", got["Authorization"])
	assert.Equal(t, "text/html", got["Content-Type"])
}

func TestSettingsValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultSettings().Validate())
	bad := DefaultSettings()
	bad.Time = "25:00"
	assert.Error(t, bad.Validate())
}
