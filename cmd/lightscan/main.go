// Package main provides the entry point for the lightscan CLI.
//
// lightscan audits a web page through a running Chrome's remote debugging
// protocol. It loads the page under mobile emulation, gathers artifacts
// (traces, network records, page state), audits them and reports weighted
// category scores.
//
// Usage:
//
//	lightscan run <url>
//	lightscan history <url>
//
// See --help for all available options.
package main

import "os"

// main is the entry point for lightscan.
func main() {
	os.Exit(Execute())
}
