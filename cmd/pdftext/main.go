// Command pdftext prints the text of a document as JSON, using the embedded
// text layer where it is usable and OCR elsewhere.
//
//	pdftext <path>
//
// On success it exits 0 and prints {"text": ..., "pages": [...]}. On failure
// it exits 1 and prints {"error": ...}. Logs go to stderr.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newApp(os.Stdout, os.Stderr, defaultExtractor).run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
