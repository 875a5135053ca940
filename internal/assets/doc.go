// Package assets saves gathered artifacts to disk and loads them back, so
// that gathering and auditing can run as separate steps.
//
// A saved run looks like this:
//
//	<dir>/manifest.json
//	<dir>/artifacts/<name>.json
//	<dir>/<pass>.trace.json
//	<dir>/<pass>.network.json
//
// The manifest lists every file with its SHA3-256 digest. Load refuses files
// whose content no longer matches.
package assets
