package scanner

import (
	"strings"

	"github.com/sipico/consent-logger/internal/classifier"
	"github.com/sipico/consent-logger/internal/storage"
)

// KnownCookie describes a cookie set by a well-known platform component.
type KnownCookie struct {
	Name        string
	Category    classifier.Category
	Description string
}

// matches reports whether name is this cookie. Names ending in "_" or "-"
// are prefixes for cookies carrying a per-site or per-user suffix.
func (k KnownCookie) matches(name string) bool {
	if strings.HasSuffix(k.Name, "_") || strings.HasSuffix(k.Name, "-") {
		return strings.HasPrefix(name, k.Name)
	}
	return name == k.Name
}

var knownCookies = []KnownCookie{
	{"wordpress_test_cookie", classifier.Necessary, "WordPress test cookie"},
	{"wordpress_logged_in_", classifier.Necessary, "WordPress login cookie"},
	{"wp-settings-", classifier.Necessary, "WordPress user settings"},
	{"_ga", classifier.Analytics, "Google Analytics - Main cookie"},
	{"_gid", classifier.Analytics, "Google Analytics - 24-hour visitor identifier"},
	{"_gat", classifier.Analytics, "Google Analytics - Throttling cookie"},
	{"_gtm", classifier.Analytics, "Google Tag Manager"},
	{"_fbp", classifier.Advertisement, "Facebook Pixel"},
	{"_fbc", classifier.Advertisement, "Facebook Click ID"},
	{"woocommerce_cart_hash", classifier.Necessary, "WooCommerce cart hash"},
	{"woocommerce_items_in_cart", classifier.Necessary, "WooCommerce cart items"},
	{"wp_woocommerce_session_", classifier.Necessary, "WooCommerce session"},
	{"mailchimp_landing_site", classifier.Functional, "Mailchimp landing page tracking"},
	{"PHPSESSID", classifier.Necessary, "PHP Session ID"},
}

// componentCookies lists the cookies each component sets when active.
var componentCookies = map[string][]string{
	"google-analytics-for-wordpress":    {"_ga", "_gid"},
	"google-analytics-dashboard-for-wp": {"_ga", "_gid"},
	"googleanalytics":                   {"_ga", "_gid"},
	"facebook-for-woocommerce":          {"_fbp"},
	"official-facebook-pixel":           {"_fbp"},
	"woocommerce":                       {"woocommerce_cart_hash", "woocommerce_items_in_cart", "wp_woocommerce_session_"},
}

// LookupKnown returns the registry entry for name, if any.
func LookupKnown(name string) (KnownCookie, bool) {
	for _, k := range knownCookies {
		if k.matches(name) {
			return k, true
		}
	}
	return KnownCookie{}, false
}

// registryCookies returns the cookies contributed by active components,
// in component order.
func registryCookies(active []string) []*storage.TrackedCookie {
	var out []*storage.TrackedCookie
	for _, component := range active {
		for _, name := range componentCookies[strings.ToLower(strings.TrimSpace(component))] {
			k, ok := LookupKnown(name)
			if !ok {
				k = KnownCookie{Name: name}
			}
			out = append(out, &storage.TrackedCookie{
				Name:        k.Name,
				Category:    string(k.Category),
				Source:      SourceKnownRegistry,
				Description: k.Description,
				Component:   component,
			})
		}
	}
	return out
}
