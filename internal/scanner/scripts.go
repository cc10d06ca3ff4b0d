package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sipico/consent-logger/internal/storage"
)

// maxScriptSize bounds how much of a single script is read.
const maxScriptSize = 2 << 20

// cookiePatterns match cookie-setting syntax. Group 1 is the cookie name.
var cookiePatterns = []*regexp.Regexp{
	regexp.MustCompile(`document\.cookie\s*=\s*["']([^"'=]+)=`),
	regexp.MustCompile(`setCookie\(["']([^"']+)["']`),
	regexp.MustCompile(`Cookies\.set\(["']([^"']+)["']`),
	regexp.MustCompile(`\b(_ga|_gid|_gat|_gtm|_fbp|_fbc)\b`),
}

// DefaultPluginAllowlist names the plugin directories inspected for scripts.
var DefaultPluginAllowlist = []string{"google-analytics", "facebook-pixel", "mailchimp", "contact-form-7"}

// findScripts returns up to limit non-minified .js files under dir in
// lexical order. A missing directory yields nothing.
func findScripts(dir string, limit int) []string {
	if dir == "" || limit <= 0 {
		return nil
	}
	var files []string
	//nolint:errcheck // unreadable subtrees are skipped
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".js" || strings.Contains(d.Name(), ".min.") {
			return nil
		}
		files = append(files, path)
		if len(files) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	return files
}

// scanScripts inspects theme and allow-listed plugin scripts for cookie
// names. Results are ordered by first appearance.
func (s *Scanner) scanScripts(ctx context.Context) ([]*storage.TrackedCookie, error) {
	files := findScripts(s.cfg.ThemeDir, s.cfg.ThemeFileCap)
	if s.cfg.PluginsDir != "" {
		for _, plugin := range s.cfg.PluginAllowlist {
			files = append(files, findScripts(filepath.Join(s.cfg.PluginsDir, plugin), s.cfg.PluginFileCap)...)
		}
	}

	var out []*storage.TrackedCookie
	seen := make(map[string]bool)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		if err != nil || info.Size() > maxScriptSize {
			s.logger.Debug("skipping script", "file", path, "error", err)
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read script", "file", path, "error", err)
			continue
		}

		for _, re := range cookiePatterns {
			for _, m := range re.FindAllSubmatch(content, -1) {
				name := strings.TrimSpace(string(m[1]))
				if name == "" || seen[name] {
					continue
				}
				seen[name] = true
				out = append(out, &storage.TrackedCookie{
					Name:   name,
					Source: SourceScriptScan,
					File:   filepath.Base(path),
				})
			}
		}
	}

	s.logger.Debug("script scan finished", "files", len(files), "cookies", len(out))
	return out, nil
}
