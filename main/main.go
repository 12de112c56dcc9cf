package main

import (
	"flag"
	"log"
	"os"

	"github.com/sony/load-dashboard/dashboard"
)

func main() {
	pconfig := flag.String("config", "",
		"JSON configuration; overrides DASHBOARD_CONFIG")

	flag.Parse()

	configStr := os.Getenv("DASHBOARD_CONFIG")
	if *pconfig != "" {
		configStr = *pconfig
	}

	config, err := dashboard.ParseConfig(configStr)
	if err != nil {
		log.Fatalf("Couldn't parse DASHBOARD_CONFIG string: %+v", err)
	}

	log.Fatal(dashboard.RunServer(config))
}
