// Package format fills the {placeholder} message templates found in the config file
package format

import "strings"

// Fill replaces each {key} in tmpl with its value. kv alternates keys and values;
// placeholders without a value are left as written.
func Fill(tmpl string, kv ...string) string {
	if len(kv) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
