package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/harrylevesque/firenet/internal/files"
)

func main() {
	keyFile := flag.String("out", "master.key", "path of the key file to create")
	flag.Parse()

	if files.FileExists(*keyFile) {
		fmt.Fprintf(os.Stderr, "Error: %s already exists. Refusing to overwrite.\n", *keyFile)
		os.Exit(1)
	}
	if _, err := files.GenerateMasterKey(*keyFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *keyFile, err)
		os.Exit(1)
	}
	fmt.Printf("Master key written to %s\n", *keyFile)
}
