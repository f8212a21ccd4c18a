package summarize

// facilityObserver is the feed's facility code for observer sessions.
// Observers never control traffic and are excluded from interaction
// detection.
const facilityObserver = 0

// facilityTypes maps the feed's facility code to the position label
// used in interaction arrays. The network publishes canonical service
// ranges alongside these (FSS 400 NM, DEL 5, GND 15, TWR 15, APP 60,
// CTR 400) but the detector applies one configurable radius for every
// position, so only the labels are consumed here.
var facilityTypes = map[int]string{
	0: "OBS",
	1: "FSS",
	2: "DEL",
	3: "GND",
	4: "TWR",
	5: "APP",
	6: "CTR",
}

// FacilityType returns the position label for a facility code, or
// "UNK" for codes outside the published table.
func FacilityType(code int) string {
	if t, ok := facilityTypes[code]; ok {
		return t
	}
	return "UNK"
}
