// Command crawl fetches the pages listed in a seed file, optionally
// follows their links to a bounded depth, and records per-URL results and
// the discovered link graph. Interrupted crawls resume from their
// checkpoint with --resume.
//
// Usage:
//
//	crawl urls.txt -c 20 -d 2 -s
//	crawl urls.txt -s --keyword golang
//	crawl --resume
//	cat urls.txt | crawl -
package main

func main() {
	Execute()
}
