package mtc

import (
	"sync"
	"time"
)

// LocationAvailabilityResult holds the verified availability for both doses of
// a location's series.  MyTurn books both appointments together, so a location
// is only truly bookable when both sequences are non-empty.
type LocationAvailabilityResult struct {
	Dose1Availabilities []DoseAvailability `json:"dose1Availabilities"`
	Dose2Availabilities []DoseAvailability `json:"dose2Availabilities"`
}

func (r LocationAvailabilityResult) HasAvailabilities() bool {
	return len(r.Dose1Availabilities) > 0 && len(r.Dose2Availabilities) > 0
}

func EmptyAvailabilityResult() LocationAvailabilityResult {
	return LocationAvailabilityResult{
		Dose1Availabilities: []DoseAvailability{},
		Dose2Availabilities: []DoseAvailability{},
	}
}

// DiscoveryEngine turns one (location, eligibility token) pair into verified
// dose-1 and dose-2 availability.
type DiscoveryEngine struct {
	api                     MyTurnAPI
	maxConcurrentSlotChecks int
	now                     func() time.Time
}

func NewDiscoveryEngine(api MyTurnAPI, config *Config) *DiscoveryEngine {
	engine := new(DiscoveryEngine)
	engine.api = api
	engine.maxConcurrentSlotChecks = config.MaxConcurrentSlotChecks
	engine.now = time.Now

	return engine
}

// CheckLocation runs the discovery pipeline for one location.  An error means
// the upstream failed somewhere mid-pipeline; the returned result is empty but
// the caller must not confuse it with a confirmed negative.
func (e *DiscoveryEngine) CheckLocation(location Location) (LocationAvailabilityResult, error) {
	product := DetectProduct(location.Name)

	zone, err := time.LoadLocation(location.Timezone)
	if err != nil {
		Log.Warnf("%s: unknown timezone '%s', assuming UTC", location.Id, location.Timezone)
		zone = time.UTC
	}

	// Dose 1: day-granularity window starting today (run clock)
	startDate := e.now().UTC().Format(DateFormat)
	days, err := e.api.AvailabilityDayRange(location.Id, startDate, 1, location.VaccineData)
	if err != nil {
		return EmptyAvailabilityResult(), err
	}

	dose1Days := filterAvailable(days)
	if len(dose1Days) == 0 {
		Log.Debugf("%s: no availabilities for dose 1, skipping", location.Id)
		return EmptyAvailabilityResult(), nil
	}

	dose1Days, err = e.reviseDose1Days(location.Id, location.VaccineData, zone, dose1Days)
	if err != nil {
		return EmptyAvailabilityResult(), err
	}

	if len(dose1Days) == 0 {
		Log.Debugf("%s: no availabilities for dose 1 after removing today's date, skipping", location.Id)
		return EmptyAvailabilityResult(), nil
	}

	dose1, err := e.materializeSlots(location.Id, location.VaccineData, 1, dose1Days)
	if err != nil {
		return EmptyAvailabilityResult(), err
	}

	// The dose-2 search window is anchored on the first dose-1 date confirmed
	// to have real slots, so a falsely-available day can't shift it.
	anchorDate := ""
	for _, availability := range dose1 {
		if len(availability.Slots) > 0 {
			anchorDate = availability.Date
			break
		}
	}

	if len(anchorDate) == 0 {
		Log.Debugf("%s: no dose 1 date has actual slots, skipping", location.Id)
		return EmptyAvailabilityResult(), nil
	}

	anchor, err := time.Parse(DateFormat, anchorDate)
	if err != nil {
		return EmptyAvailabilityResult(), err
	}

	//calendar-day arithmetic only; this is a derived search start, not a
	//remote claim, so no same-day correction applies to it
	secondDoseStart := anchor.AddDate(0, 0, product.IntervalDays).Format(DateFormat)

	Log.Debugf("%s: found %d dose 1 availabilities, checking dose 2 starting at %s [%d days from %s]",
		location.Id, len(dose1), secondDoseStart, product.IntervalDays, anchorDate)

	days, err = e.api.AvailabilityDayRange(location.Id, secondDoseStart, 2, location.VaccineData)
	if err != nil {
		return EmptyAvailabilityResult(), err
	}

	dose2, err := e.materializeSlots(location.Id, location.VaccineData, 2, filterAvailable(days))
	if err != nil {
		return EmptyAvailabilityResult(), err
	}

	return LocationAvailabilityResult{
		Dose1Availabilities: dose1,
		Dose2Availabilities: dose2,
	}, nil
}

func filterAvailable(days []AvailabilityDay) []AvailabilityDay {
	available := make([]AvailabilityDay, 0, len(days))
	for _, day := range days {
		if day.Available {
			available = append(available, day)
		}
	}

	return available
}

// MyTurn sometimes reports today's date as available after every open slot has
// passed.  If the earliest dose-1 date is today in the location's timezone,
// verify it at slot granularity and drop it when no slot is still ahead of the
// local clock.
func (e *DiscoveryEngine) reviseDose1Days(locationId string, vaccineData string, zone *time.Location, days []AvailabilityDay) ([]AvailabilityDay, error) {
	localNow := e.now().In(zone)
	localToday := localNow.Format(DateFormat)

	firstDoseDate := days[0].Date
	if firstDoseDate != localToday {
		return days, nil
	}

	slots, err := e.api.SlotAvailabilityCheck(locationId, firstDoseDate, 1, vaccineData)
	if err != nil {
		return nil, err
	}

	if len(slots) == 0 {
		Log.Infof("Removing first dose date %s for %s due to no slot availability on this day", firstDoseDate, locationId)
		return dropDate(days, firstDoseDate), nil
	}

	lastSlotTime := slots[len(slots)-1].LocalStartTime
	currentTime := localNow.Format(SlotTimeFormat)
	Log.Debugf("Found last slot time: %s - comparing to %s local time", lastSlotTime, currentTime)

	if lastSlotTime > currentTime {
		return days, nil
	}

	return dropDate(days, firstDoseDate), nil
}

func dropDate(days []AvailabilityDay, date string) []AvailabilityDay {
	kept := make([]AvailabilityDay, 0, len(days))
	for _, day := range days {
		if day.Date != date {
			kept = append(kept, day)
		}
	}

	return kept
}

// materializeSlots attaches slot-level detail to every candidate date.  Dates
// with zero slots are retained; slot ordering is MyTurn's.  Any failed slot
// check fails the whole location.
func (e *DiscoveryEngine) materializeSlots(locationId string, vaccineData string, doseNumber int, days []AvailabilityDay) ([]DoseAvailability, error) {
	availabilities := make([]DoseAvailability, len(days))
	errors := make([]error, len(days))

	sem := make(chan struct{}, e.maxConcurrentSlotChecks)
	wg := new(sync.WaitGroup)

	for i, day := range days {
		wg.Add(1)
		go func(i int, day AvailabilityDay) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			slots, err := e.api.SlotAvailabilityCheck(locationId, day.Date, doseNumber, vaccineData)
			if err != nil {
				errors[i] = err
				return
			}

			Log.Debugf("Found %d available slots for dose %d on %s", len(slots), doseNumber, day.Date)

			if slots == nil {
				slots = []Slot{}
			}
			availabilities[i] = DoseAvailability{
				Date:  day.Date,
				Slots: slots,
			}
		}(i, day)
	}

	wg.Wait()

	for _, err := range errors {
		if err != nil {
			return nil, err
		}
	}

	return availabilities, nil
}
