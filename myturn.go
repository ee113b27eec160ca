package mtc

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

const DateFormat = "2006-01-02"
const SlotTimeFormat = "15:04:05"

const SiteTypeThirdPartyBooking = "ThirdPartyBooking"

const EligibilityUrl = "%s/eligibility"
const LocationSearchUrl = "%s/locations/search"
const AvailabilityUrl = "%s/locations/%s/availability"
const SlotsUrl = "%s/locations/%s/date/%s/slots"

//referrer pages MyTurn expects echoed back in request bodies
const ScreeningPageUrl = "https://myturn.ca.gov/screening"
const LocationSelectPageUrl = "https://myturn.ca.gov/location-select"
const AppointmentSelectPageUrl = "https://myturn.ca.gov/appointment-select"

//slot responses are cached briefly so the same-day correction and the
//per-date materialization don't hit MyTurn twice for the same (location, date, dose)
const SlotCacheTTL = 60

// Location is a bookable vaccination site as MyTurn reports it.  JSON field
// names match the documents the original collector published, which downstream
// consumers already parse.
type Location struct {
	Id          string      `json:"id"`
	Address     string      `json:"address"`
	Lat         float64     `json:"lat"`
	Long        float64     `json:"long"`
	Name        string      `json:"name"`
	Hours       interface{} `json:"hours"`
	Type        string      `json:"type"`
	Timezone    string      `json:"timezone"`
	VaccineData string      `json:"vaccineData"`
	ExternalURL string      `json:"externalURL"`
}

// AvailabilityDay is a day-granularity claim from MyTurn, not yet verified at
// slot granularity.
type AvailabilityDay struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
}

type Slot struct {
	LocalStartTime string `json:"localStartTime"`
}

// DoseAvailability is a verified date with its concrete time slots.
type DoseAvailability struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

//wire schemas - an upstream contract owned by MyTurn, not by this system

type eligibilityAnswer struct {
	Id    string      `json:"id"`
	Value interface{} `json:"value,omitempty"`
	Type  string      `json:"type"`
}

type eligibilityRequest struct {
	EligibilityQuestionResponse []eligibilityAnswer `json:"eligibilityQuestionResponse"`
	Url                         string              `json:"url"`
}

type eligibilityResponse struct {
	Eligible    bool   `json:"eligible"`
	VaccineData string `json:"vaccineData"`
}

type searchCoordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type locationQuery struct {
	IncludePools []string `json:"includePools"`
}

type locationSearchRequest struct {
	Location      searchCoordinate `json:"location"`
	FromDate      string           `json:"fromDate"`
	VaccineData   string           `json:"vaccineData"`
	LocationQuery locationQuery    `json:"locationQuery"`
	Url           string           `json:"url"`
}

type locationRecord struct {
	ExtId          string           `json:"extId"`
	DisplayAddress string           `json:"displayAddress"`
	Location       searchCoordinate `json:"location"`
	Name           string           `json:"name"`
	OpenHours      interface{}      `json:"openHours"`
	Type           string           `json:"type"`
	Timezone       string           `json:"timezone"`
	VaccineData    string           `json:"vaccineData"`
	ExternalURL    string           `json:"externalURL"`
}

type locationSearchResponse struct {
	Locations []locationRecord `json:"locations"`
}

type availabilityRequest struct {
	VaccineData string `json:"vaccineData"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	DoseNumber  int    `json:"doseNumber"`
	Url         string `json:"url"`
}

type availabilityResponse struct {
	Availability []AvailabilityDay `json:"availability"`
}

type slotsRequest struct {
	VaccineData string `json:"vaccineData"`
	Dose        int    `json:"dose"`
}

type slotsResponse struct {
	SlotsWithAvailability []Slot `json:"slotsWithAvailability"`
}

//the one canonical eligible profile used for every run
func screeningAnswers() []eligibilityAnswer {
	return []eligibilityAnswer{
		{
			Id:    "q.screening.18.yr.of.age",
			Value: []string{"q.screening.18.yr.of.age"},
			Type:  "multi-select",
		},
		{
			Id:    "q.screening.health.data",
			Value: []string{"q.screening.health.data"},
			Type:  "multi-select",
		},
		{
			Id:    "q.screening.privacy.statement",
			Value: []string{"q.screening.privacy.statement"},
			Type:  "multi-select",
		},
		{
			Id:    "q.screening.eligibility.age.range",
			Value: "75 and older",
			Type:  "single-select",
		},
		{
			Id:    "q.screening.eligibility.industry",
			Value: "Other",
			Type:  "single-select",
		},
		{
			Id:    "q.screening.eligibility.county",
			Value: "Alameda",
			Type:  "single-select",
		},
		{
			Id:   "q.screening.accessibility.code",
			Type: "text",
		},
	}
}

// CallCounter tracks outbound MyTurn calls for one run, per endpoint.
type CallCounter struct {
	Eligibility  int64
	Search       int64
	Availability int64
	Slots        int64
}

func (c *CallCounter) Total() int64 {
	return atomic.LoadInt64(&c.Eligibility) +
		atomic.LoadInt64(&c.Search) +
		atomic.LoadInt64(&c.Availability) +
		atomic.LoadInt64(&c.Slots)
}

func (c *CallCounter) String() string {
	return fmt.Sprintf("eligibility: %d, search: %d, availability: %d, slots: %d",
		atomic.LoadInt64(&c.Eligibility),
		atomic.LoadInt64(&c.Search),
		atomic.LoadInt64(&c.Availability),
		atomic.LoadInt64(&c.Slots))
}

// MyTurnAPI is the remote booking API surface the discovery pipeline consumes.
type MyTurnAPI interface {
	FetchVaccineData() (string, error)
	LocationSearch(fromDate string, county string, vaccineData string) ([]Location, error)
	AvailabilityDayRange(locationId string, startDate string, doseNumber int, vaccineData string) ([]AvailabilityDay, error)
	SlotAvailabilityCheck(locationId string, date string, doseNumber int, vaccineData string) ([]Slot, error)
}

type MyTurnClient struct {
	BaseUrl        string
	Timeout        int
	MaxRetries     int
	RetryBaseDelay time.Duration
	Calls          *CallCounter
}

func NewMyTurnClient(config *Config) *MyTurnClient {
	SeedRand()

	client := new(MyTurnClient)
	client.BaseUrl = config.ApiBaseUrl
	client.Timeout = config.HttpTimeout
	client.MaxRetries = config.MaxRetries
	client.RetryBaseDelay = time.Duration(config.RetryBaseDelayMs) * time.Millisecond
	client.Calls = new(CallCounter)

	return client
}

var seedRandOnce sync.Once

func SeedRand() {
	seedRandOnce.Do(func() {
		rand.Seed(time.Now().UnixNano())
	})
}

func (client *MyTurnClient) postJson(name string, url string, payload interface{}, counter *int64) ([]byte, error) {
	return client.postJsonCached(name, url, payload, counter, 0)
}

//retries transient transport failures with jittered backoff; a transient
//failure must not be reported as an empty result
func (client *MyTurnClient) postJsonCached(name string, url string, payload interface{}, counter *int64, cacheTTL int64) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := NewJsonPostEndpoint(url, string(bodyBytes))
	endpoint.Timeout = client.Timeout

	var body []byte
	for attempt := 0; ; attempt++ {
		var cacheMiss bool

		if cacheTTL > 0 {
			body, cacheMiss, err = endpoint.FetchCachedWithTTL(name, cacheTTL)
		} else {
			body, err = endpoint.Fetch(name)
			cacheMiss = true
		}

		if cacheMiss {
			atomic.AddInt64(counter, 1)
		}

		if err == nil {
			return body, nil
		}

		if attempt >= client.MaxRetries {
			return nil, err
		}

		delay := client.RetryBaseDelay*time.Duration(attempt+1) +
			time.Duration(rand.Int63n(int64(client.RetryBaseDelay)))
		Log.Debugf("%s: retrying in %v after: %v", name, delay, err)
		time.Sleep(delay)
	}
}

// FetchVaccineData obtains the opaque eligibility token for this run.  An
// empty token with a nil error is a normal "skip this run" signal: MyTurn
// answered but the canonical profile came back ineligible or tokenless.
func (client *MyTurnClient) FetchVaccineData() (string, error) {
	request := eligibilityRequest{
		EligibilityQuestionResponse: screeningAnswers(),
		Url:                         ScreeningPageUrl,
	}

	bodyBytes, err := json.Marshal(request)
	if err != nil {
		return "", err
	}

	endpoint := NewJsonPostEndpoint(fmt.Sprintf(EligibilityUrl, client.BaseUrl), string(bodyBytes))
	endpoint.Timeout = client.Timeout

	atomic.AddInt64(&client.Calls.Eligibility, 1)
	body, err := endpoint.Fetch("eligibility")
	if err != nil {
		return "", err
	}

	response := eligibilityResponse{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", err
	}

	if !response.Eligible || len(response.VaccineData) == 0 {
		Log.Infof("MyTurn reports profile ineligible or returned no vaccineData")
		return "", nil
	}

	return response.VaccineData, nil
}

// LocationSearch returns the bookable locations around a county's seed
// coordinate.  A non-nil error means the upstream failed and the county must
// be skipped without overwriting previously stored results; an empty slice
// means MyTurn answered and genuinely has no locations.
func (client *MyTurnClient) LocationSearch(fromDate string, county string, vaccineData string) ([]Location, error) {
	coord, err := CountyCoordinate(county)
	if err != nil {
		return nil, err
	}

	request := locationSearchRequest{
		Location: searchCoordinate{
			Lat: coord.Lat,
			Lng: coord.Lng,
		},
		FromDate:    fromDate,
		VaccineData: vaccineData,
		LocationQuery: locationQuery{
			IncludePools: []string{"default"},
		},
		Url: LocationSelectPageUrl,
	}

	name := fmt.Sprintf("search (%s)", county)
	body, err := client.postJson(name, fmt.Sprintf(LocationSearchUrl, client.BaseUrl), request, &client.Calls.Search)
	if err != nil {
		return nil, err
	}

	response := locationSearchResponse{}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}

	locations := make([]Location, 0, len(response.Locations))
	for _, record := range response.Locations {
		locations = append(locations, Location{
			Id:          record.ExtId,
			Address:     record.DisplayAddress,
			Lat:         record.Location.Lat,
			Long:        record.Location.Lng,
			Name:        record.Name,
			Hours:       record.OpenHours,
			Type:        record.Type,
			Timezone:    record.Timezone,
			VaccineData: record.VaccineData,
			ExternalURL: record.ExternalURL,
		})
	}

	return locations, nil
}

// AvailabilityDayRange queries day-granularity availability for the two month
// window starting at startDate.
func (client *MyTurnClient) AvailabilityDayRange(locationId string, startDate string, doseNumber int, vaccineData string) ([]AvailabilityDay, error) {
	start, err := time.Parse(DateFormat, startDate)
	if err != nil {
		return nil, err
	}

	request := availabilityRequest{
		VaccineData: vaccineData,
		StartDate:   startDate,
		EndDate:     start.AddDate(0, 2, 0).Format(DateFormat),
		DoseNumber:  doseNumber,
		Url:         AppointmentSelectPageUrl,
	}

	name := fmt.Sprintf("availability (%s/dose%d)", locationId, doseNumber)
	body, err := client.postJson(name, fmt.Sprintf(AvailabilityUrl, client.BaseUrl, locationId), request, &client.Calls.Availability)
	if err != nil {
		return nil, err
	}

	response := availabilityResponse{}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}

	return response.Availability, nil
}

// SlotAvailabilityCheck returns the concrete open time slots for one
// (location, date, dose).  Failures propagate: the caller decides what an
// error means for the date-inclusion decision.
func (client *MyTurnClient) SlotAvailabilityCheck(locationId string, date string, doseNumber int, vaccineData string) ([]Slot, error) {
	request := slotsRequest{
		VaccineData: vaccineData,
		Dose:        doseNumber,
	}

	name := fmt.Sprintf("slots (%s/%s/dose%d)", locationId, date, doseNumber)
	url := fmt.Sprintf(SlotsUrl, client.BaseUrl, locationId, date)
	body, err := client.postJsonCached(name, url, request, &client.Calls.Slots, SlotCacheTTL)
	if err != nil {
		return nil, err
	}

	response := slotsResponse{}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}

	return response.SlotsWithAvailability, nil
}
