// Package report renders run summaries.
//
// This package contains writers for different output formats:
//   - SimpleWriter: plain text for the terminal
//   - MarkdownWriter: Markdown for sharing alongside the prepared data
//   - JSONWriter: structured output for scripts
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed with MultiWriter.
package report
