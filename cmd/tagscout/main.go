// Command tagscout crawls an Android app and scores its analytics tag coverage.
package main

import "github.com/devicelab-dev/tagscout/pkg/cli"

func main() {
	cli.Execute()
}
