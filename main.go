package main

import (
	"log"

	"github.com/shaharia-lab/devgate/cmd"
)

func main() {
	webFS, err := getFrontendFS()
	if err != nil {
		log.Fatalf("failed to load client bundle: %v", err)
	}
	cmd.WebFS = webFS
	cmd.Execute()
}
