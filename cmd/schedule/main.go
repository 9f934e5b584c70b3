package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"peermeet/internal/infrastructure/bootstrap"
	"peermeet/pkg/utils"
	"peermeet/pkg/validation"
)

// schedule creates a meeting: it picks the meeting ID, records the metadata
// and media defaults, detects the host's public origin, and writes the
// bootstrap blob the meeting client starts from.
func main() {
	var (
		topic       = flag.String("topic", "", "meeting topic")
		description = flag.String("description", "", "meeting description")
		when        = flag.String("when", "", "start time, RFC 3339 (default: now)")
		duration    = flag.Duration("duration", time.Hour, "planned duration")
		timezone    = flag.String("timezone", "Local", "IANA timezone name")
		displayName = flag.String("name", "Host", "host display name")
		audio       = flag.Bool("audio", true, "start with microphone enabled")
		video       = flag.Bool("video", true, "start with camera enabled")
		stunServer  = flag.String("stun", "stun.l.google.com:19302", "STUN server for origin detection")
		output      = flag.String("out", "meeting.json", "bootstrap output path")
	)
	flag.Parse()

	if err := validation.ValidateDisplayName(*displayName); err != nil {
		fatalf("invalid display name: %v", err)
	}

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		fatalf("invalid timezone %q: %v", *timezone, err)
	}

	startAt := time.Now().In(loc)
	if *when != "" {
		parsed, err := time.Parse(time.RFC3339, *when)
		if err != nil {
			fatalf("invalid start time %q (want RFC 3339): %v", *when, err)
		}
		startAt = parsed.In(loc)
	}

	meetingID := utils.GenerateMeetingID()
	origin := detectHostOrigin(*stunServer)

	data := &bootstrap.Data{
		MeetingID:    meetingID,
		IsHost:       true,
		DisplayName:  *displayName,
		HostOrigin:   origin,
		AudioEnabled: *audio,
		VideoEnabled: *video,
		Schedule: &bootstrap.Schedule{
			Topic:       *topic,
			Description: *description,
			When:        startAt,
			Duration:    *duration,
			Timezone:    loc.String(),
		},
	}

	if err := data.Write(*output); err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("meeting %s scheduled\n", meetingID)
	fmt.Printf("  starts:   %s\n", startAt.Format(time.RFC1123))
	fmt.Printf("  duration: %s\n", *duration)
	fmt.Printf("  origin:   %s\n", origin)
	fmt.Printf("  written:  %s\n", *output)
	fmt.Println()
	fmt.Printf("share the meeting ID; participants join with PEERMEET_MEETING_ID=%s\n", meetingID)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "schedule: "+format+"\n", args...)
	os.Exit(1)
}
