package stealth

import (
	"encoding/json"
	"strings"
)

// Script returns JavaScript to be evaluated before any page script runs. It
// masks the usual automation tells and aligns navigator properties with the
// fingerprint.
func (fp Fingerprint) Script() string {
	var b strings.Builder
	b.WriteString("(() => {\n")
	b.WriteString("const define = (obj, prop, value) => { try { Object.defineProperty(obj, prop, { get: () => value, configurable: true }); } catch (e) {} };\n")
	b.WriteString("define(Navigator.prototype, 'webdriver', undefined);\n")
	b.WriteString("define(navigator, 'languages', " + jsValue(fp.Languages) + ");\n")
	b.WriteString("define(navigator, 'platform', " + jsValue(fp.Platform) + ");\n")
	b.WriteString("define(navigator, 'vendor', " + jsValue(fp.Vendor) + ");\n")
	b.WriteString("define(navigator, 'hardwareConcurrency', " + jsValue(fp.HardwareConcurrency) + ");\n")
	if fp.Touch {
		b.WriteString("define(navigator, 'maxTouchPoints', 5);\n")
	}
	if len(fp.Plugins) > 0 {
		b.WriteString("const pluginNames = " + jsValue(fp.Plugins) + ";\n")
		b.WriteString(`const mimeTypes = [{ type: 'application/pdf', suffixes: 'pdf', description: 'Portable Document Format' }];
const plugins = pluginNames.map((name) => ({ name, filename: 'internal-pdf-viewer', description: 'Portable Document Format', length: mimeTypes.length }));
plugins.item = (i) => plugins[i] || null;
plugins.namedItem = (n) => plugins.find((p) => p.name === n) || null;
plugins.refresh = () => {};
mimeTypes.item = (i) => mimeTypes[i] || null;
mimeTypes.namedItem = (n) => mimeTypes.find((m) => m.type === n) || null;
define(navigator, 'plugins', plugins);
define(navigator, 'mimeTypes', mimeTypes);
`)
	}
	if fp.Safari() {
		// Safari has no window.chrome; Chromium defines it even when headless.
		b.WriteString("try { delete window.chrome; } catch (e) {}\n")
	} else {
		b.WriteString(`if (!window.chrome) { window.chrome = {}; }
if (!window.chrome.runtime) { window.chrome.runtime = { connect: () => {}, sendMessage: () => {} }; }
`)
	}
	b.WriteString(`if (navigator.permissions && navigator.permissions.query) {
  const original = navigator.permissions.query.bind(navigator.permissions);
  navigator.permissions.query = (params) => (
    params && params.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission, onchange: null })
      : original(params)
  );
}
})();`)
	return b.String()
}

// Safari reports whether the fingerprint poses as an Apple WebKit browser.
func (fp Fingerprint) Safari() bool {
	return strings.HasPrefix(fp.Vendor, "Apple")
}

func jsValue(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "undefined"
	}
	return string(raw)
}
