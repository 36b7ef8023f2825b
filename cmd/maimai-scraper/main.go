package main

import (
	_ "time/tzdata"

	"maimai-scraper/cmd/maimai-scraper/cmd"
)

func main() {
	cmd.Execute()
}
