package mtc

import (
	"fmt"
	"os"
	"path/filepath"
)

// Run is the local entry point so both jobs can be exercised outside Lambda.
func Run(args []string) {
	if len(args) < 2 {
		printUsageAndExit(args)
	}

	var result JobResult
	var err error

	switch args[1] {
	case "collect":
		result, err = RunCollectorJob(CollectorEvent{Counties: args[2:]})
	case "reduce":
		result, err = RunReducerJob(ReducerEvent{})
	default:
		printUsageAndExit(args)
	}

	if err != nil {
		Log.Errorf("%v", err)
		os.Exit(1)
	}

	Log.Infof("%d: %s", result.StatusCode, result.Body)

	if result.StatusCode != 200 {
		os.Exit(1)
	}
}

func printUsageAndExit(args []string) {
	exeName := filepath.Base(args[0])
	fmt.Printf("Usage: %s collect [county ...] | reduce\n", exeName)
	os.Exit(0)
}
