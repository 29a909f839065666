// Command tempo runs the deferred job engine.
//
//	tempo serve    HTTP API only
//	tempo worker   worker loop only
//	tempo run      API and worker in one process
//	tempo migrate  apply job store migrations
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
