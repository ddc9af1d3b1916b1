// Package file provides the file emitter, which appends message bodies to a
// file on disk.
//
// Settings:
//
//	path        output file; parent directories are created (required)
//	format      raw, jsonl or json (default jsonl)
//	append      append to an existing file instead of truncating it (default true)
//	bufferSize  messages collected before a write (default 1)
//
// In jsonl mode every body must be a JSON value and is written on its own
// line. json mode pretty-prints each body. raw mode writes the bytes as they
// are, with no separator.
//
// The file is opened by Initialize and closed by Shutdown, which also writes
// anything still buffered.
package file
