// Package main provides the entry point for the clsprep CLI.
//
// clsprep prepares mammography datasets for breast cancer classification.
// For every selected dataset it runs Stage 1 (ingest the raw data and write
// the cleaned label table) and Stage 2 (decode, crop to the region of
// interest and write 8-bit PNG images), one dataset after the other.
//
// Usage:
//
//	clsprep --datasets vindr cmmd
//	clsprep --num-workers 8 --perc-pos 0.2 --datasets rsna-breast-cancer-detection
//
// See --help for all available options.
package main

// main is the entry point for clsprep.
func main() {
	Execute()
}
