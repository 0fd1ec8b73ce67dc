// Package templates holds the HTML views of the web server. Views are
// written as .templ files; the _templ.go files are generated from them with
// `templ generate`.
package templates
