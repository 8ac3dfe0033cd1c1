package main

import (
	"log"

	"github.com/thiagokokada/gitsvn/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		log.Fatalf("gitsvn: %v", err)
	}
}
