package mtc

//unit tests for the discovery engine

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeMyTurnAPI struct {
	vaccineData    string
	eligibilityErr error
	locations      map[string][]Location
	searchErr      error
	dose1Days      []AvailabilityDay
	dose2Days      []AvailabilityDay
	dose2Starts    []string
	slots          map[string][]Slot
	slotErrs       map[string]error
	slotCalls      []string
	mutex          sync.Mutex
}

func newFakeMyTurnAPI() *fakeMyTurnAPI {
	fake := new(fakeMyTurnAPI)
	fake.vaccineData = "fake-vaccine-data"
	fake.locations = make(map[string][]Location)
	fake.slots = make(map[string][]Slot)
	fake.slotErrs = make(map[string]error)

	return fake
}

func slotKey(date string, doseNumber int) string {
	return fmt.Sprintf("%s|%d", date, doseNumber)
}

func (f *fakeMyTurnAPI) FetchVaccineData() (string, error) {
	return f.vaccineData, f.eligibilityErr
}

func (f *fakeMyTurnAPI) LocationSearch(fromDate string, county string, vaccineData string) ([]Location, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	return f.locations[county], nil
}

func (f *fakeMyTurnAPI) AvailabilityDayRange(locationId string, startDate string, doseNumber int, vaccineData string) ([]AvailabilityDay, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if doseNumber == 2 {
		f.dose2Starts = append(f.dose2Starts, startDate)
		return f.dose2Days, nil
	}

	return f.dose1Days, nil
}

func (f *fakeMyTurnAPI) SlotAvailabilityCheck(locationId string, date string, doseNumber int, vaccineData string) ([]Slot, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	key := slotKey(date, doseNumber)
	f.slotCalls = append(f.slotCalls, key)

	if err, exists := f.slotErrs[key]; exists {
		return nil, err
	}

	return f.slots[key], nil
}

func testConfig() *Config {
	return &Config{
		ApiBaseUrl:              DefaultAPIBaseUrl,
		HttpTimeout:             5,
		MaxRetries:              0,
		RetryBaseDelayMs:        1,
		MaxConcurrentLocations:  2,
		MaxConcurrentSlotChecks: 2,
		ReducerPageSize:         DefaultReducerPageSize,
	}
}

func newTestEngine(fake *fakeMyTurnAPI, nowUTC string) *DiscoveryEngine {
	engine := NewDiscoveryEngine(fake, testConfig())

	fixed, err := time.Parse(time.RFC3339, nowUTC)
	if err != nil {
		panic(err)
	}
	engine.now = func() time.Time { return fixed }

	return engine
}

func testLocation(name string) Location {
	return Location{
		Id:          "loc-1",
		Name:        name,
		Timezone:    "America/Los_Angeles",
		VaccineData: "loc-vaccine-data",
	}
}

func TestNoDose1Availability(t *testing.T) {
	fake := newFakeMyTurnAPI()
	fake.dose1Days = []AvailabilityDay{
		{Date: "2021-03-10", Available: false},
		{Date: "2021-03-11", Available: false},
	}

	engine := newTestEngine(fake, "2021-03-09T18:00:00Z")

	result, err := engine.CheckLocation(testLocation("Clinic A"))
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
		return
	}

	if len(result.Dose1Availabilities) != 0 || len(result.Dose2Availabilities) != 0 {
		t.Errorf("Expected empty result for both doses, got %+v", result)
		return
	}

	if result.HasAvailabilities() {
		t.Errorf("Expected HasAvailabilities to be false")
		return
	}

	if len(fake.slotCalls) != 0 {
		t.Errorf("Expected no slot checks, got %v", fake.slotCalls)
	}
}

func TestSameDayAllSlotsPassed(t *testing.T) {
	//dose 1 reports only today, slots 09:00/10:00, local time is 11:00 PST
	fake := newFakeMyTurnAPI()
	fake.dose1Days = []AvailabilityDay{
		{Date: "2021-03-09", Available: true},
	}
	fake.slots[slotKey("2021-03-09", 1)] = []Slot{
		{LocalStartTime: "09:00:00"},
		{LocalStartTime: "10:00:00"},
	}

	engine := newTestEngine(fake, "2021-03-09T19:00:00Z") //11:00:00 PST

	result, err := engine.CheckLocation(testLocation("Clinic A"))
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
		return
	}

	if len(result.Dose1Availabilities) != 0 || len(result.Dose2Availabilities) != 0 {
		t.Errorf("Expected empty result for both doses, got %+v", result)
		return
	}

	if len(fake.dose2Starts) != 0 {
		t.Errorf("Expected no dose 2 query, got %v", fake.dose2Starts)
	}
}

func TestSameDaySlotStillAhead(t *testing.T) {
	fake := newFakeMyTurnAPI()
	fake.dose1Days = []AvailabilityDay{
		{Date: "2021-03-09", Available: true},
	}
	fake.slots[slotKey("2021-03-09", 1)] = []Slot{
		{LocalStartTime: "09:00:00"},
		{LocalStartTime: "15:00:00"},
	}
	fake.dose2Days = []AvailabilityDay{
		{Date: "2021-04-01", Available: true},
	}
	fake.slots[slotKey("2021-04-01", 2)] = []Slot{
		{LocalStartTime: "10:00:00"},
	}

	engine := newTestEngine(fake, "2021-03-09T19:00:00Z") //11:00:00 PST

	result, err := engine.CheckLocation(testLocation("Clinic A"))
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
		return
	}

	if len(result.Dose1Availabilities) != 1 {
		t.Errorf("Expected today's date to be kept, got %+v", result.Dose1Availabilities)
		return
	}

	if !result.HasAvailabilities() {
		t.Errorf("Expected HasAvailabilities to be true")
	}
}

func TestSameDayNoSlotsAtAll(t *testing.T) {
	fake := newFakeMyTurnAPI()
	fake.dose1Days = []AvailabilityDay{
		{Date: "2021-03-09", Available: true},
		{Date: "2021-03-12", Available: true},
	}
	fake.slots[slotKey("2021-03-09", 1)] = []Slot{}
	fake.slots[slotKey("2021-03-12", 1)] = []Slot{
		{LocalStartTime: "09:00:00"},
	}
	fake.dose2Days = []AvailabilityDay{}

	engine := newTestEngine(fake, "2021-03-09T19:00:00Z")

	result, err := engine.CheckLocation(testLocation("Clinic A"))
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
		return
	}

	//today dropped, later date preserved unchanged
	if len(result.Dose1Availabilities) != 1 || result.Dose1Availabilities[0].Date != "2021-03-12" {
		t.Errorf("Expected only 2021-03-12 in dose 1 result, got %+v", result.Dose1Availabilities)
	}
}

func TestNoCorrectionAcrossTimezoneBoundary(t *testing.T) {
	//05:00 UTC on the 10th is still the evening of the 9th in Los Angeles, so
	//a first available date of the 10th is not "today" and must pass through
	//without a same-day slot check
	fake := newFakeMyTurnAPI()
	fake.dose1Days = []AvailabilityDay{
		{Date: "2021-03-10", Available: true},
	}
	fake.slots[slotKey("2021-03-10", 1)] = []Slot{
		{LocalStartTime: "09:00:00"},
	}
	fake.dose2Days = []AvailabilityDay{}

	engine := newTestEngine(fake, "2021-03-10T05:00:00Z")

	result, err := engine.CheckLocation(testLocation("Clinic A"))
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
		return
	}

	if len(result.Dose1Availabilities) != 1 {
		t.Errorf("Expected one dose 1 date, got %+v", result.Dose1Availabilities)
		return
	}

	//exactly one slot call: the materialization, not the correction
	if len(fake.slotCalls) != 1 {
		t.Errorf("Expected 1 slot call, got %v", fake.slotCalls)
	}
}

func TestAnchorAndSpacing(t *testing.T) {
	//today 2021-03-09, dates 2021-03-10 and 2021-03-12, interval 21 days
	fake := newFakeMyTurnAPI()
	fake.dose1Days = []AvailabilityDay{
		{Date: "2021-03-10", Available: true},
		{Date: "2021-03-12", Available: true},
	}
	fake.slots[slotKey("2021-03-10", 1)] = []Slot{
		{LocalStartTime: "09:00:00"},
	}
	fake.slots[slotKey("2021-03-12", 1)] = []Slot{
		{LocalStartTime: "09:00:00"},
	}
	fake.dose2Days = []AvailabilityDay{
		{Date: "2021-04-01", Available: true},
	}
	fake.slots[slotKey("2021-04-01", 2)] = []Slot{
		{LocalStartTime: "10:00:00"},
	}

	engine := newTestEngine(fake, "2021-03-09T18:00:00Z")

	result, err := engine.CheckLocation(testLocation("Clinic A"))
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
		return
	}

	if len(fake.dose2Starts) != 1 || fake.dose2Starts[0] != "2021-03-31" {
		t.Errorf("Expected dose 2 query starting at 2021-03-31, got %v", fake.dose2Starts)
		return
	}

	if len(result.Dose1Availabilities) != 2 || len(result.Dose2Availabilities) != 1 {
		t.Errorf("Expected 2 dose 1 dates and 1 dose 2 date, got %+v", result)
		return
	}

	if !result.HasAvailabilities() {
		t.Errorf("Expected HasAvailabilities to be true")
	}
}

func TestModernaInterval(t *testing.T) {
	fake := newFakeMyTurnAPI()
	fake.dose1Days = []AvailabilityDay{
		{Date: "2021-03-10", Available: true},
	}
	fake.slots[slotKey("2021-03-10", 1)] = []Slot{
		{LocalStartTime: "09:00:00"},
	}
	fake.dose2Days = []AvailabilityDay{}

	engine := newTestEngine(fake, "2021-03-09T18:00:00Z")

	_, err := engine.CheckLocation(testLocation("Clinic B - Moderna"))
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
		return
	}

	if len(fake.dose2Starts) != 1 || fake.dose2Starts[0] != "2021-04-07" {
		t.Errorf("Expected dose 2 query starting at 2021-04-07 (28 days), got %v", fake.dose2Starts)
	}
}

func TestAnchorSkipsDatesWithoutSlots(t *testing.T) {
	//first dose 1 date has no actual slots: it stays in the output but does
	//not anchor the dose 2 window
	fake := newFakeMyTurnAPI()
	fake.dose1Days = []AvailabilityDay{
		{Date: "2021-03-10", Available: true},
		{Date: "2021-03-12", Available: true},
	}
	fake.slots[slotKey("2021-03-10", 1)] = []Slot{}
	fake.slots[slotKey("2021-03-12", 1)] = []Slot{
		{LocalStartTime: "09:00:00"},
	}
	fake.dose2Days = []AvailabilityDay{}

	engine := newTestEngine(fake, "2021-03-09T18:00:00Z")

	result, err := engine.CheckLocation(testLocation("Clinic A"))
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
		return
	}

	if len(fake.dose2Starts) != 1 || fake.dose2Starts[0] != "2021-04-02" {
		t.Errorf("Expected dose 2 query starting at 2021-04-02, got %v", fake.dose2Starts)
		return
	}

	if len(result.Dose1Availabilities) != 2 {
		t.Errorf("Expected zero-slot date to be retained, got %+v", result.Dose1Availabilities)
		return
	}

	if len(result.Dose1Availabilities[0].Slots) != 0 {
		t.Errorf("Expected first date to have no slots, got %+v", result.Dose1Availabilities[0])
	}
}

func TestNoDose1DateHasSlots(t *testing.T) {
	fake := newFakeMyTurnAPI()
	fake.dose1Days = []AvailabilityDay{
		{Date: "2021-03-10", Available: true},
	}
	fake.slots[slotKey("2021-03-10", 1)] = []Slot{}

	engine := newTestEngine(fake, "2021-03-09T18:00:00Z")

	result, err := engine.CheckLocation(testLocation("Clinic A"))
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
		return
	}

	if len(result.Dose1Availabilities) != 0 || len(result.Dose2Availabilities) != 0 {
		t.Errorf("Expected empty result for both doses, got %+v", result)
		return
	}

	if len(fake.dose2Starts) != 0 {
		t.Errorf("Expected no dose 2 query, got %v", fake.dose2Starts)
	}
}

func TestSlotCheckErrorPropagates(t *testing.T) {
	fake := newFakeMyTurnAPI()
	fake.dose1Days = []AvailabilityDay{
		{Date: "2021-03-10", Available: true},
	}
	fake.slotErrs[slotKey("2021-03-10", 1)] = fmt.Errorf("Status code: 500")

	engine := newTestEngine(fake, "2021-03-09T18:00:00Z")

	result, err := engine.CheckLocation(testLocation("Clinic A"))
	if err == nil {
		t.Errorf("Expected error, got nil")
		return
	}

	if len(result.Dose1Availabilities) != 0 || len(result.Dose2Availabilities) != 0 {
		t.Errorf("Expected empty result alongside error, got %+v", result)
	}
}

func TestDetectProduct(t *testing.T) {
	if product := DetectProduct("Rite Aid - MODERNA clinic"); product.IntervalDays != 28 {
		t.Errorf("Expected 28 day interval, got %d", product.IntervalDays)
		return
	}

	if product := DetectProduct("Community clinic (Pfizer)"); product.IntervalDays != 21 {
		t.Errorf("Expected 21 day interval, got %d", product.IntervalDays)
		return
	}

	if product := DetectProduct("Fairgrounds mass vaccination site"); product.IntervalDays != 21 {
		t.Errorf("Expected default 21 day interval, got %d", product.IntervalDays)
	}
}
