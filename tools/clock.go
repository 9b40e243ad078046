package tools

import (
	"context"
	"fmt"
	"time"
)

// TimeArgs are the arguments of the get_time tool.
type TimeArgs struct {
	TimeZone string `json:"time_zone,omitempty" jsonschema:"IANA time zone, e.g. Europe/Moscow; defaults to the home time zone"`
}

// TimeResult is returned to the model.
type TimeResult struct {
	Time     string `json:"time"`
	Weekday  string `json:"weekday"`
	TimeZone string `json:"time_zone"`
}

// NewClock returns the get_time tool. now and home may be nil/empty.
func NewClock(now func() time.Time, home string) Tool {
	if now == nil {
		now = time.Now
	}
	return MustTool("get_time", "Get the current date and time.",
		func(_ context.Context, in TimeArgs) (TimeResult, error) {
			name := in.TimeZone
			if name == "" {
				name = home
			}
			loc := time.Local
			if name != "" {
				l, err := time.LoadLocation(name)
				if err != nil {
					return TimeResult{}, fmt.Errorf("unknown time zone %q", name)
				}
				loc = l
			}
			t := now().In(loc)
			return TimeResult{Time: t.Format(time.RFC3339), Weekday: t.Weekday().String(), TimeZone: loc.String()}, nil
		})
}
