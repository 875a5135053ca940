// Package config provides configuration structures and utilities for lightscan.
//
// Configuration has two layers. Config is a flat struct populated from CLI
// flags: where the browser is, what to do with the results and which run mode
// to use. File is the YAML run configuration: the passes to execute, the
// gatherers each pass runs, the audits to evaluate and how audits roll up into
// weighted categories. DefaultRunConfig returns the built-in File used when no
// configuration file is found.
package config
