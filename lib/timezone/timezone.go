package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Brussels")
	if err != nil {
		panic(err)
	}
}

// force the clock into the portal's timezone, the provider renders
// year-less timestamps that only make sense against Brussels local time
func Now() time.Time {
	return time.Now().In(Location)
}
