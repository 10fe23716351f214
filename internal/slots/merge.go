// Package slots merges extracted slot candidates into a session and normalizes them.
package slots

import "salonbot/internal/model"

// Merge overlays candidate onto existing. A field is replaced only when candidate fills it.
func Merge(existing, candidate model.SlotSet) model.SlotSet {
	out := existing
	if candidate.ServiceID != 0 {
		out.ServiceID = candidate.ServiceID
		out.ServiceName = candidate.ServiceName
	}
	if candidate.Date != "" {
		out.Date = candidate.Date
	}
	if candidate.Shift != "" {
		out.Shift = candidate.Shift
	}
	if candidate.StartTime != "" {
		out.StartTime = candidate.StartTime
	}
	return out
}

// Changed lists the slots whose value differs between before and after.
func Changed(before, after model.SlotSet) []model.SlotName {
	var out []model.SlotName
	if before.ServiceID != after.ServiceID {
		out = append(out, model.SlotService)
	}
	if before.Date != after.Date {
		out = append(out, model.SlotDate)
	}
	if before.Shift != after.Shift {
		out = append(out, model.SlotShift)
	}
	if before.StartTime != after.StartTime {
		out = append(out, model.SlotStartTime)
	}
	return out
}
