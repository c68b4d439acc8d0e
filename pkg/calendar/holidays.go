package calendar

import (
	"time"

	"github.com/rickar/cal/v2"
)

func fixed(name string, month time.Month, day int) *cal.Holiday {
	return &cal.Holiday{
		Name:  name,
		Type:  cal.ObservancePublic,
		Month: month,
		Day:   day,
		Func:  cal.CalcDayOfMonth,
	}
}

func easter(name string, offset int) *cal.Holiday {
	return &cal.Holiday{
		Name:   name,
		Type:   cal.ObservancePublic,
		Offset: offset,
		Func:   cal.CalcEasterOffset,
	}
}

var estonia = []*cal.Holiday{
	fixed("New Year's Day", time.January, 1),
	fixed("Independence Day", time.February, 24),
	easter("Good Friday", -2),
	easter("Easter Sunday", 0),
	fixed("Spring Day", time.May, 1),
	easter("Pentecost", 49),
	fixed("Victory Day", time.June, 23),
	fixed("Midsummer Day", time.June, 24),
	fixed("Restoration of Independence Day", time.August, 20),
	fixed("Christmas Eve", time.December, 24),
	fixed("Christmas Day", time.December, 25),
	fixed("Boxing Day", time.December, 26),
}

var latvia = []*cal.Holiday{
	fixed("New Year's Day", time.January, 1),
	easter("Good Friday", -2),
	easter("Easter Sunday", 0),
	easter("Easter Monday", 1),
	fixed("Labour Day", time.May, 1),
	fixed("Restoration of Independence Day", time.May, 4),
	fixed("Midsummer Eve", time.June, 23),
	fixed("Midsummer Day", time.June, 24),
	fixed("Proclamation Day", time.November, 18),
	fixed("Christmas Eve", time.December, 24),
	fixed("Christmas Day", time.December, 25),
	fixed("Second Day of Christmas", time.December, 26),
	fixed("New Year's Eve", time.December, 31),
}

var lithuania = []*cal.Holiday{
	fixed("New Year's Day", time.January, 1),
	fixed("Restoration of the State Day", time.February, 16),
	fixed("Restoration of Independence Day", time.March, 11),
	easter("Easter Sunday", 0),
	easter("Easter Monday", 1),
	fixed("Labour Day", time.May, 1),
	fixed("St. John's Day", time.June, 24),
	fixed("Statehood Day", time.July, 6),
	fixed("Assumption Day", time.August, 15),
	fixed("All Saints' Day", time.November, 1),
	fixed("All Souls' Day", time.November, 2),
	fixed("Christmas Eve", time.December, 24),
	fixed("Christmas Day", time.December, 25),
	fixed("Second Day of Christmas", time.December, 26),
}

var (
	epiphany       = fixed("Epiphany", time.January, 6)
	corpusChristi  = easter("Corpus Christi", 60)
	assumption     = fixed("Assumption Day", time.August, 15)
	reformationDay = fixed("Reformation Day", time.October, 31)
	allSaints      = fixed("All Saints' Day", time.November, 1)
)

// germanStates holds holidays observed only in some federal states.
var germanStates = map[string][]*cal.Holiday{
	"BW": {epiphany, corpusChristi, allSaints},
	"BY": {epiphany, corpusChristi, assumption, allSaints},
	"BE": {fixed("International Women's Day", time.March, 8)},
	"BB": {reformationDay},
	"HB": {reformationDay},
	"HH": {reformationDay},
	"HE": {corpusChristi},
	"MV": {reformationDay},
	"NI": {reformationDay},
	"NW": {corpusChristi, allSaints},
	"RP": {corpusChristi, allSaints},
	"SL": {corpusChristi, assumption, allSaints},
	"SN": {reformationDay},
	"ST": {epiphany, reformationDay},
	"SH": {reformationDay},
	"TH": {reformationDay, fixed("World Children's Day", time.September, 20)},
}
