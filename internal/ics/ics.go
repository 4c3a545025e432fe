// Package ics renders canonical events as an iCalendar feed.
package ics

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/emersion/go-ical"
)

// ProductID identifies the feed producer.
const ProductID = "-//Lab Calendar Sync//EN"

// Calendar converts events into one VCALENDAR with a VEVENT per event.
// stamp is written as DTSTAMP on every component.
func Calendar(events []*model.CalendarEvent, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	for _, event := range events {
		if event == nil {
			continue
		}
		cal.Children = append(cal.Children, vevent(event, stamp))
	}
	// A VCALENDAR needs at least one component.
	if len(cal.Children) == 0 {
		cal.Children = append(cal.Children, utcTimezone())
	}
	return cal
}

func utcTimezone() *ical.Component {
	standard := ical.NewComponent(ical.CompTimezoneStandard)
	for name, value := range map[string]string{
		ical.PropDateTimeStart:      "19700101T000000",
		ical.PropTimezoneOffsetFrom: "+0000",
		ical.PropTimezoneOffsetTo:   "+0000",
	} {
		prop := ical.NewProp(name)
		prop.Value = value
		standard.Props.Set(prop)
	}
	standard.Props.SetText(ical.PropTimezoneName, "UTC")

	tz := ical.NewComponent(ical.CompTimezone)
	tz.Props.SetText(ical.PropTimezoneID, "UTC")
	tz.Children = append(tz.Children, standard)
	return tz
}

func vevent(event *model.CalendarEvent, stamp time.Time) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, event.ID+"@lab-calendar-sync")
	comp.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	comp.Props.SetText(ical.PropSummary, event.Title)

	if event.Description != "" {
		comp.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		comp.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.ExternalURL != "" {
		comp.Props.SetText(ical.PropURL, event.ExternalURL)
	}

	if event.AllDay {
		dtstart := ical.NewProp(ical.PropDateTimeStart)
		dtstart.SetDate(event.Start)
		comp.Props.Set(dtstart)
		dtend := ical.NewProp(ical.PropDateTimeEnd)
		dtend.SetDate(event.End)
		comp.Props.Set(dtend)
	} else {
		comp.Props.SetDateTime(ical.PropDateTimeStart, event.Start.UTC())
		comp.Props.SetDateTime(ical.PropDateTimeEnd, event.End.UTC())
	}

	// Only private events are hidden from the wider lab.
	class := "PUBLIC"
	if event.Visibility == model.VisibilityPrivate {
		class = "PRIVATE"
	}
	comp.Props.SetText(ical.PropClass, class)

	if event.RemoteUpdatedAt != nil {
		comp.Props.SetDateTime(ical.PropLastModified, event.RemoteUpdatedAt.UTC())
	}
	comp.Props.SetText("X-LAB-CALENDAR-SOURCE", string(event.CalendarSource))

	for _, attendee := range event.Attendees {
		if attendee.Email == "" {
			continue
		}
		prop := ical.NewProp(ical.PropAttendee)
		prop.Value = "mailto:" + attendee.Email
		if attendee.Name != "" {
			prop.Params.Set(ical.ParamCommonName, attendee.Name)
		}
		prop.Params.Set(ical.ParamParticipationStatus, partStat(attendee.Response))
		prop.Params.Set(ical.ParamRole, role(attendee.Role))
		comp.Props.Add(prop)
	}

	return comp
}

func partStat(r model.AttendeeResponse) string {
	switch r {
	case model.ResponseAccepted:
		return "ACCEPTED"
	case model.ResponseDeclined:
		return "DECLINED"
	case model.ResponseTentative:
		return "TENTATIVE"
	default:
		return "NEEDS-ACTION"
	}
}

func role(r model.AttendeeRole) string {
	switch r {
	case model.RoleOptional:
		return "OPT-PARTICIPANT"
	case model.RoleOrganizer:
		return "CHAIR"
	case model.RoleResource:
		return "NON-PARTICIPANT"
	default:
		return "REQ-PARTICIPANT"
	}
}

// Encode writes the feed for events to w.
func Encode(w io.Writer, events []*model.CalendarEvent, stamp time.Time) error {
	if err := ical.NewEncoder(w).Encode(Calendar(events, stamp)); err != nil {
		return fmt.Errorf("failed to encode calendar feed: %w", err)
	}
	return nil
}

// Marshal returns the feed for events as bytes.
func Marshal(events []*model.CalendarEvent, stamp time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, events, stamp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
