// Package normalize maps provider-native events into canonical events.
// It performs no I/O and reads no clock: identical input always yields an
// identical event.
package normalize

import "github.com/beekhof/lab-calendar-sync/internal/model"

// All provider enum translations live here. The visibility tables collapse
// the providers' four states into the three canonical audiences; anything
// not listed falls back to the value noted beside each table.

// googleResponseStatus maps Google attendee responseStatus. Default: none
// (covers needsAction).
var googleResponseStatus = map[string]model.AttendeeResponse{
	"accepted":  model.ResponseAccepted,
	"declined":  model.ResponseDeclined,
	"tentative": model.ResponseTentative,
}

// microsoftResponseStatus maps Graph attendee status.response. Default:
// none (covers none and notResponded).
var microsoftResponseStatus = map[string]model.AttendeeResponse{
	"accepted":            model.ResponseAccepted,
	"organizer":           model.ResponseAccepted,
	"declined":            model.ResponseDeclined,
	"tentativelyAccepted": model.ResponseTentative,
}

// googleVisibility maps Google event visibility. Default: lab (covers
// default and absent).
var googleVisibility = map[string]model.Visibility{
	"private":      model.VisibilityPrivate,
	"confidential": model.VisibilityPrivate,
	"public":       model.VisibilityOrganisation,
}

// microsoftSensitivity maps Graph sensitivity. Default: lab (covers
// personal and absent).
var microsoftSensitivity = map[string]model.Visibility{
	"private":      model.VisibilityPrivate,
	"confidential": model.VisibilityPrivate,
	"normal":       model.VisibilityOrganisation,
}

// microsoftAttendeeType maps Graph attendee type. Default: required.
var microsoftAttendeeType = map[string]model.AttendeeRole{
	"required": model.RoleRequired,
	"optional": model.RoleOptional,
	"resource": model.RoleResource,
}

func lookupResponse(table map[string]model.AttendeeResponse, key string) model.AttendeeResponse {
	if r, ok := table[key]; ok {
		return r
	}
	return model.ResponseNone
}

func lookupVisibility(table map[string]model.Visibility, key string) model.Visibility {
	if v, ok := table[key]; ok {
		return v
	}
	return model.VisibilityLab
}
