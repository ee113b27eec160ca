package mtc

import "fmt"

type GeoCoord struct {
	Lat float64
	Lng float64
}

func (c GeoCoord) Zero() bool {
	return c.Lat == 0.0 && c.Lng == 0.0
}

func (c GeoCoord) String() string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lng)
}

// Selected lat/long of county geo location to search for location availabilities.
var CountyLatLong = map[string]GeoCoord{
	"Alameda":         {37.7652076, -122.2416355},
	"Alpine":          {32.846668, -116.807269},
	"Amador":          {38.4193553, -120.824103},
	"Berkeley":        {37.8708393, -122.2728639},
	"Butte":           {39.72949775, -121.8481053},
	"Calaveras":       {38.2638071, -120.2785402},
	"Colusa":          {39.1465578, -122.2209563},
	"Contra Costa":    {37.9034806, -121.9175345},
	"Del Norte":       {41.7261767, -123.91328},
	"El Dorado":       {38.6826817, -120.8477146},
	"Fresno":          {36.7295295, -119.7088613},
	"Glenn":           {39.5218283, -122.0138651},
	"Humboldt":        {40.87558755, -124.0779998},
	"Imperial":        {32.8475529, -115.5694391},
	"Inyo":            {36.7349318, -117.9856422},
	"Kern":            {35.3821806, -118.9826001},
	"Kings":           {36.3826384, -119.861114},
	"Lake":            {39.0505411, -122.7776556},
	"Lassen":          {40.49138385, -121.4043359},
	"Long Beach":      {33.7817687, -118.1151997},
	"Los Angeles":     {34.0536909, -118.242766},
	"Madera":          {36.9418115, -120.1714382},
	"Marin":           {37.99800515, -122.5306406},
	"Mariposa":        {37.48218185, -119.9639587},
	"Mendocino":       {39.3076744, -123.7994591},
	"Merced":          {37.3029568, -120.4843269},
	"Modoc":           {41.5450487, -120.7435998},
	"Mono":            {37.9533927, -118.9398758},
	"Monterey":        {36.2231079, -121.3877428},
	"Napa":            {38.2971367, -122.2855293},
	"Nevada":          {40.659622, -118.14932},
	"Orange":          {33.7500378, -117.8704931},
	"Pasadena":        {34.1430079, -118.1417617},
	"Placer":          {39.009344, -120.7707639},
	"Plumas":          {39.7568786, -120.7047562},
	"Riverside":       {33.7219991, -116.0372472},
	"Sacramento":      {38.5810606, -121.4938951},
	"San Benito":      {36.5096854, -121.0818602},
	"San Bernardino":  {34.1083449, -117.2897652},
	"San Diego":       {32.7174202, -117.1627728},
	"San Francisco":   {37.7790262, -122.4199061},
	"San Joaquin":     {37.9372901, -121.2773719},
	"San Luis Obispo": {35.2827525, -120.6596156},
	"San Mateo":       {37.5439684, -122.3066789},
	"Santa Barbara":   {34.7136533, -119.9858232},
	"Santa Clara":     {37.3541132, -121.9551744},
	"Santa Cruz":      {37.050096, -121.9905908},
	"Shasta":          {40.5993165, -122.4919571},
	"Sierra":          {-17.8219718, -63.2174815},
	"Siskiyou":        {41.66722485, -123.7106152},
	"Solano":          {38.2358384, -122.1011537},
	"Sonoma":          {38.5110803, -122.8473388},
	"Stanislaus":      {37.5500871, -121.0501425},
	"Sutter":          {38.9509675, -121.697088},
	"Tehama":          {40.0271015, -122.1233228},
	"Trinity":         {40.8544797, -123.0408066},
	"Tulare":          {36.2077351, -119.3473421},
	"Tuolumne":        {37.961335, -120.2389796},
	"Ventura":         {34.3435092, -119.2956042},
	"Yolo":            {38.7318481, -121.8077431},
	"Yuba":            {39.1254479, -121.5855207},
}

func CountyCoordinate(county string) (GeoCoord, error) {
	coord, exists := CountyLatLong[county]
	if !exists {
		return GeoCoord{}, fmt.Errorf("Unknown county: %s", county)
	}

	return coord, nil
}
