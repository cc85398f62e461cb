// Command extract runs the analysis extractor over a saved agent reply.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/room4-2/roleplay-live/analysis"
)

func main() {
	path := flag.String("file", "-", "File holding the agent reply, - for stdin")
	flag.Parse()

	var (
		data []byte
		err  error
	)
	if *path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*path)
	}
	if err != nil {
		log.Fatalf("Failed to read reply: %v", err)
	}

	ex, err := analysis.Extract(string(data))
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	fmt.Printf("Strategy: %s (degraded: %t)\n\n", ex.Strategy, ex.Degraded())
	fmt.Println("Strengths:")
	for _, s := range ex.Feedback.Strengths {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Println("Improvements:")
	for _, s := range ex.Feedback.Improvements {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Printf("\nFeedback:\n%s\n", ex.Feedback.DetailedFeedback)
}
