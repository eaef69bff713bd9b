// Package textutil provides text helpers shared across the pipeline:
// BOM-tolerant UTF-8 file reading and the single-line escaping used when
// embedding multi-line source text into prompts.
package textutil
