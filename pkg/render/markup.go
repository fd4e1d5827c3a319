package render

import "strings"

// Button formats a button tag. The value attribute is omitted when it equals
// the label, since the label is the default click value. Labels are written
// as is and must not contain '<' or '>'; the flow editor refuses them in
// option text.
func Button(label, value string) string {
	if value == label {
		return "<button>" + label + "</button>"
	}
	return "<button value=" + quoteAttr(value) + ">" + label + "</button>"
}

// Download formats a self-closing download tag.
func Download(url, name string) string {
	if name == "" {
		return "<download url=" + quoteAttr(url) + "/>"
	}
	return "<download url=" + quoteAttr(url) + " name=" + quoteAttr(name) + "/>"
}

// quoteAttr picks a quote character absent from v. Values holding both
// quote characters lose their double quotes.
func quoteAttr(v string) string {
	switch {
	case !strings.Contains(v, `"`):
		return `"` + v + `"`
	case !strings.Contains(v, "'"):
		return "'" + v + "'"
	default:
		return `"` + strings.ReplaceAll(v, `"`, "") + `"`
	}
}
