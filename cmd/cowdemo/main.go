package main

import (
	"log"
)

func main() {
	log.SetFlags(0)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("cowdemo: %v", err)
	}
}
