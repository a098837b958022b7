// Command functions serves every registered function through the Functions
// Framework, the way Cloud Run functions starts the deployed image.
package main

import (
	"log"
	"strconv"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"

	_ "github.com/PipeOpsHQ/financeira-functions"
	"github.com/PipeOpsHQ/financeira-functions/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := funcframework.Start(strconv.Itoa(cfg.Port)); err != nil {
		log.Fatalf("funcframework.Start: %v", err)
	}
}
