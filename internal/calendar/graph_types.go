package calendar

// Microsoft Graph payload types. Only the fields the normalizer reads are
// declared; everything else in the provider JSON is ignored.

// GraphDateTime is Graph's dateTimeTimeZone resource. DateTime usually has
// no offset; TimeZone names the zone it is expressed in.
type GraphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

// GraphEmailAddress is an attendee or organizer address.
type GraphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// GraphResponseStatus is an attendee's RSVP.
type GraphResponseStatus struct {
	Response string `json:"response"`
	Time     string `json:"time,omitempty"`
}

// GraphAttendee is one event attendee.
type GraphAttendee struct {
	Type         string              `json:"type"`
	Status       GraphResponseStatus `json:"status"`
	EmailAddress GraphEmailAddress   `json:"emailAddress"`
}

// GraphItemBody is the event body.
type GraphItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// GraphLocation is the event location.
type GraphLocation struct {
	DisplayName string `json:"displayName"`
}

// GraphRemoved marks an item deleted since the previous delta round.
type GraphRemoved struct {
	Reason string `json:"reason"`
}

// GraphEvent is an event returned by the calendar events delta endpoint.
type GraphEvent struct {
	ID                   string          `json:"id"`
	Subject              string          `json:"subject"`
	BodyPreview          string          `json:"bodyPreview"`
	Body                 *GraphItemBody  `json:"body,omitempty"`
	Location             *GraphLocation  `json:"location,omitempty"`
	Start                *GraphDateTime  `json:"start,omitempty"`
	End                  *GraphDateTime  `json:"end,omitempty"`
	IsAllDay             bool            `json:"isAllDay"`
	IsCancelled          bool            `json:"isCancelled"`
	Sensitivity          string          `json:"sensitivity"`
	Attendees            []GraphAttendee `json:"attendees"`
	WebLink              string          `json:"webLink"`
	LastModifiedDateTime string          `json:"lastModifiedDateTime"`
	Removed              *GraphRemoved   `json:"@removed,omitempty"`
}

// Deleted reports whether the delta item is a removal or a cancellation.
func (e *GraphEvent) Deleted() bool {
	return e.Removed != nil || e.IsCancelled
}

// GraphCalendar is an entry of /me/calendars.
type GraphCalendar struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	IsDefaultCalendar bool   `json:"isDefaultCalendar"`
	CanEdit           bool   `json:"canEdit"`
}

// GraphUser is the subset of /me used to label a connection.
type GraphUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

type graphDeltaPage struct {
	Value     []GraphEvent `json:"value"`
	NextLink  string       `json:"@odata.nextLink"`
	DeltaLink string       `json:"@odata.deltaLink"`
}

type graphCalendarPage struct {
	Value    []GraphCalendar `json:"value"`
	NextLink string          `json:"@odata.nextLink"`
}
