package mtc

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

const JsonContentType = "application/json; charset=utf-8"
const CountyCacheControl = "max-age=60"
const CountiesPrefix = "counties/"

const ExternalSiteNote = "Unable to fetch availabilities. Visit external provider website for more information."
const UpstreamErrorNote = "Upstream error during availability discovery; treat as unknown, not as confirmed empty."

type LocationStatus string

const (
	LocationStatusOk       LocationStatus = "ok"
	LocationStatusError    LocationStatus = "error"
	LocationStatusExternal LocationStatus = "external"
)

// LocationResult is one location's entry in a county document.  A nil
// HasAvailabilities means "unknown" (externally-booked site); Status separates
// a confirmed empty result from an upstream failure.
type LocationResult struct {
	Location
	Availability      LocationAvailabilityResult `json:"availability"`
	HasAvailabilities *bool                      `json:"hasAvailabilities"`
	Notes             string                     `json:"notes,omitempty"`
	Status            LocationStatus             `json:"status"`
}

type CountyData struct {
	DataCollectionTime string           `json:"data_collection_time"`
	Locations          []LocationResult `json:"locations"`
}

// CountyRunner fans the discovery engine out across all locations in a county.
type CountyRunner struct {
	api                    MyTurnAPI
	engine                 *DiscoveryEngine
	maxConcurrentLocations int
	now                    func() time.Time
}

func NewCountyRunner(api MyTurnAPI, config *Config) *CountyRunner {
	runner := new(CountyRunner)
	runner.api = api
	runner.engine = NewDiscoveryEngine(api, config)
	runner.maxConcurrentLocations = config.MaxConcurrentLocations
	runner.now = time.Now

	return runner
}

// CollectCounty assembles the per-county result document.  A non-nil error
// means the location search failed upstream and the county must be skipped
// without touching its previously stored document.
func (r *CountyRunner) CollectCounty(county string, vaccineData string) (*CountyData, error) {
	Log.Infof("Processing county: %s", county)

	fromDate := r.now().UTC().Format(DateFormat)
	locations, err := r.api.LocationSearch(fromDate, county, vaccineData)
	if err != nil {
		return nil, err
	}

	Log.Infof("Found %d locations for %s", len(locations), county)

	results := make([]LocationResult, len(locations))
	sem := make(chan struct{}, r.maxConcurrentLocations)
	wg := new(sync.WaitGroup)

	for i, location := range locations {
		wg.Add(1)
		go func(i int, location Location) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = r.checkLocation(location)
		}(i, location)
	}

	wg.Wait()

	return &CountyData{
		DataCollectionTime: r.now().UTC().Format(time.RFC3339),
		Locations:          results,
	}, nil
}

func (r *CountyRunner) checkLocation(location Location) LocationResult {
	Log.Infof("Processing %s %s", location.Id, location.Name)

	// Externally-booked sites can't be checked at slot level; pass the
	// location through with its external URL and an explanatory note.
	if location.Type == SiteTypeThirdPartyBooking {
		return LocationResult{
			Location:          location,
			Availability:      EmptyAvailabilityResult(),
			HasAvailabilities: nil,
			Notes:             ExternalSiteNote,
			Status:            LocationStatusExternal,
		}
	}

	availability, err := r.engine.CheckLocation(location)
	if err != nil {
		Log.Errorf("%s: %v", location.Id, err)
		hasAvailabilities := false
		return LocationResult{
			Location:          location,
			Availability:      EmptyAvailabilityResult(),
			HasAvailabilities: &hasAvailabilities,
			Notes:             UpstreamErrorNote,
			Status:            LocationStatusError,
		}
	}

	hasAvailabilities := availability.HasAvailabilities()
	return LocationResult{
		Location:          location,
		Availability:      availability,
		HasAvailabilities: &hasAvailabilities,
		Status:            LocationStatusOk,
	}
}

// CollectorEvent is the collector job's trigger input.
type CollectorEvent struct {
	Counties          []string `json:"counties"`
	DestinationBucket string   `json:"destinationBucket"`
}

// JobResult is the coarse status both jobs report back to the harness.
type JobResult struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type Collector struct {
	api    MyTurnAPI
	runner *CountyRunner
	store  ObjectStore
}

func NewCollector(api MyTurnAPI, store ObjectStore, config *Config) *Collector {
	collector := new(Collector)
	collector.api = api
	collector.runner = NewCountyRunner(api, config)
	collector.store = store

	return collector
}

// Run executes one collection pass: one eligibility token for the whole run,
// then every county concurrently.  A failed county is skipped, never the batch.
func (c *Collector) Run(counties []string) JobResult {
	defer Cache.Destroy()

	vaccineData, err := c.api.FetchVaccineData()
	if err != nil {
		Log.Errorf("Could not fetch vaccineData: %v", err)
	}

	if len(vaccineData) == 0 {
		Log.Infof("Skipping collection due to empty vaccineData.")
		return JobResult{
			StatusCode: 422,
			Body:       "Skipping collection due to empty vaccineData.",
		}
	}

	Log.Infof("Starting collection for %d counties", len(counties))

	resultChan := make(chan error)
	for _, county := range counties {
		go func(county string) {
			resultChan <- c.collectAndStore(county, vaccineData)
		}(county)
	}

	uploaded := 0
	for range counties {
		if err := <-resultChan; err == nil {
			uploaded++
		}
	}

	return JobResult{
		StatusCode: 200,
		Body:       fmt.Sprintf("Successfully uploaded updates to %d counties.", uploaded),
	}
}

func (c *Collector) collectAndStore(county string, vaccineData string) error {
	countyData, err := c.runner.CollectCounty(county, vaccineData)
	if err != nil {
		//skip this county; its previously stored document stays as-is
		Log.Errorf("Got an error status from MyTurn for %s; skipping and not updating county file: %v", county, err)
		return err
	}

	countyFile := map[string]*CountyData{county: countyData}
	body, err := json.Marshal(countyFile)
	if err != nil {
		Log.Errorf("%s: %v", county, err)
		return err
	}

	key := CountyObjectKey(county)
	if err := c.store.Put(key, body, JsonContentType, CountyCacheControl); err != nil {
		Log.Errorf("Error uploading results for %s: %v", county, err)
		return err
	}

	Log.Infof("Finished uploading results for %s to %s", county, key)

	return nil
}

var whitespacePattern = regexp.MustCompile(`\s+`)

//"Los Angeles" => "counties/losangeles.json"
func CountyObjectKey(county string) string {
	filename := whitespacePattern.ReplaceAllString(strings.ToLower(county), "") + ".json"
	return CountiesPrefix + filename
}

// RunCollectorJob wires the real client and store together and runs one pass.
func RunCollectorJob(event CollectorEvent) (JobResult, error) {
	config, err := NewConfigDefaultPath()
	if err != nil {
		return JobResult{StatusCode: 500, Body: "ERROR"}, err
	}

	counties := event.Counties
	if len(counties) == 0 {
		counties = config.Counties
	}

	bucket := event.DestinationBucket
	if len(bucket) == 0 {
		bucket = config.DestinationBucket
	}

	if len(counties) == 0 || len(bucket) == 0 {
		return JobResult{StatusCode: 400, Body: "Missing counties or destination bucket."}, nil
	}

	client := NewMyTurnClient(config)
	store := NewS3ObjectStore(bucket, config.CompressUploads, config.ReducerPageSize)

	collector := NewCollector(client, store, config)
	result := collector.Run(counties)
	Log.Infof("Total MyTurn API call count: %d (%s)", client.Calls.Total(), client.Calls.String())

	return result, nil
}
