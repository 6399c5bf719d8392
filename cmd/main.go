package main

import (
	"github.com/telemetry-collector/cmd/agent"
)

func main() {
	agent.Execute()
}
