// Package report renders a lightscan RunResult.
//
// Three formats are supported: text for the terminal (SimpleWriter), JSON
// for tools (JSONWriter) and Markdown for pull requests and CI job
// summaries (MarkdownWriter). NewWriter picks one by the --output value.
// MultiWriter fans a result out to several writers.
//
// Writers only read the result. Rating counts and the list of findings
// come from model.NewSummary so every format agrees on them.
package report
