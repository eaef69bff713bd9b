// Command vntransl drives batch translation of visual novel dialogue
// documents through configured LLM endpoints.
package main
