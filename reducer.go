package mtc

// Combine all county data sets into a central data.json dataset.

import (
	"encoding/json"
	"fmt"
)

const ConsolidatedKey = "data.json"
const ConsolidatedCacheControl = "max-age=120"

// ReducerEvent is the reducer job's trigger input.
type ReducerEvent struct {
	SourceBucket       string `json:"sourceBucket"`
	SourceBucketPrefix string `json:"sourceBucketPrefix"`
	DestinationBucket  string `json:"destinationBucket"`
}

type Reducer struct {
	source          ObjectStore
	destination     ObjectStore
	destinationName string
}

func NewReducer(source ObjectStore, destination ObjectStore, destinationName string) *Reducer {
	reducer := new(Reducer)
	reducer.source = source
	reducer.destination = destination
	reducer.destinationName = destinationName

	return reducer
}

// Run merges every per-county document under prefix into one consolidated
// dataset keyed by county name.  A county file that can't be read or parsed is
// skipped; the rest still merge.
func (r *Reducer) Run(prefix string) JobResult {
	keys, err := r.source.List(prefix)
	if err != nil {
		Log.Errorf("Error listing objects: %v", err)
		return JobResult{StatusCode: 500, Body: "ERROR"}
	}

	Log.Infof("Found %d counties to process.", len(keys))

	consolidated := make(map[string]json.RawMessage)
	for _, key := range keys {
		Log.Infof("Processing %s county file.", key)

		body, err := r.source.Get(key)
		if err != nil {
			Log.Errorf("Error getting object %s: %v", key, err)
			continue
		}

		countyFile := make(map[string]json.RawMessage)
		if err := json.Unmarshal(body, &countyFile); err != nil {
			Log.Errorf("Skipping malformed county file %s: %v", key, err)
			continue
		}

		//each county file has one top-level key: the county name
		for county, data := range countyFile {
			consolidated[county] = data
		}
	}

	body, err := json.Marshal(consolidated)
	if err != nil {
		Log.Errorf("%v", err)
		return JobResult{StatusCode: 500, Body: "ERROR"}
	}

	if err := r.destination.Put(ConsolidatedKey, body, JsonContentType, ConsolidatedCacheControl); err != nil {
		Log.Errorf("Error uploading consolidated dataset: %v", err)
		return JobResult{StatusCode: 500, Body: "ERROR"}
	}

	Log.Infof("Finished uploading consolidated results")

	return JobResult{
		StatusCode: 200,
		Body:       fmt.Sprintf("Successfully uploaded consolidated update to %s/%s", r.destinationName, ConsolidatedKey),
	}
}

// RunReducerJob wires the real stores together and runs one reduction.
func RunReducerJob(event ReducerEvent) (JobResult, error) {
	config, err := NewConfigDefaultPath()
	if err != nil {
		return JobResult{StatusCode: 500, Body: "ERROR"}, err
	}

	sourceBucket := event.SourceBucket
	if len(sourceBucket) == 0 {
		sourceBucket = config.SourceBucket
	}

	destinationBucket := event.DestinationBucket
	if len(destinationBucket) == 0 {
		destinationBucket = config.DestinationBucket
	}

	if len(sourceBucket) == 0 || len(destinationBucket) == 0 {
		return JobResult{StatusCode: 400, Body: "Missing source or destination bucket."}, nil
	}

	prefix := event.SourceBucketPrefix
	if len(prefix) == 0 {
		prefix = config.SourceBucketPrefix
	}
	if len(prefix) == 0 {
		prefix = CountiesPrefix
	}

	source := NewS3ObjectStore(sourceBucket, config.CompressUploads, config.ReducerPageSize)
	destination := NewS3ObjectStore(destinationBucket, config.CompressUploads, config.ReducerPageSize)

	reducer := NewReducer(source, destination, destinationBucket)

	return reducer.Run(prefix), nil
}
