package survey

import (
	"context"
	"fmt"

	"github.com/gather-app/gather/pkg/models"
)

// Stats summarizes the committed RSVP responses of one survey. Submissions
// without an RSVP response (plain survey answers) are not counted.
type Stats struct {
	TotalRSVPs     int64              `json:"total_rsvps"`
	YesCount       int64              `json:"yes_count"`
	NoCount        int64              `json:"no_count"`
	MaybeCount     int64              `json:"maybe_count"`
	YesAttendees   int64              `json:"yes_attendees"`
	MaybeAttendees int64              `json:"maybe_attendees"`
	Attendees      *AttendeeBreakdown `json:"attendees,omitempty"`
}

// AttendeeBreakdown lists who is coming, grouped by response. Only present
// when the event publishes its attendee list.
type AttendeeBreakdown struct {
	Yes   []AttendeeEntry `json:"yes"`
	Maybe []AttendeeEntry `json:"maybe"`
}

// AttendeeEntry is one respondent on the public attendee list.
type AttendeeEntry struct {
	Name         string `json:"name"`
	NumAttendees int64  `json:"num_attendees"`
}

// Stats aggregates RSVP counts and attendee sums for a survey. A submission
// with no stored head count contributes one attendee. The per-name breakdown
// is built only when withAttendees is set.
func (s *Service) Stats(ctx context.Context, surveyID int64, withAttendees bool) (*Stats, error) {
	subs, err := s.submissions.ListSubmissionsBySurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("listing submissions for survey %d: %w", surveyID, err)
	}

	st := &Stats{}
	var breakdown *AttendeeBreakdown
	if withAttendees {
		breakdown = &AttendeeBreakdown{
			Yes:   []AttendeeEntry{},
			Maybe: []AttendeeEntry{},
		}
	}

	for i := range subs {
		sub := &subs[i]
		if sub.RSVP == nil {
			continue
		}
		count := int64(1)
		if sub.NumAttendees != nil {
			count = *sub.NumAttendees
		}
		name := ""
		if sub.Identity != nil {
			name = *sub.Identity
		}

		switch *sub.RSVP {
		case models.RSVPYes:
			st.YesCount++
			st.YesAttendees += count
			if breakdown != nil {
				breakdown.Yes = append(breakdown.Yes, AttendeeEntry{Name: name, NumAttendees: count})
			}
		case models.RSVPNo:
			st.NoCount++
		case models.RSVPMaybe:
			st.MaybeCount++
			st.MaybeAttendees += count
			if breakdown != nil {
				breakdown.Maybe = append(breakdown.Maybe, AttendeeEntry{Name: name, NumAttendees: count})
			}
		}
	}

	st.TotalRSVPs = st.YesCount + st.NoCount + st.MaybeCount
	st.Attendees = breakdown
	return st, nil
}
