package workflow

import (
	"fmt"
	"sort"
	"time"
)

// ActionDescriptor is the display metadata for one audit action. The table
// below is the single closed source of these; unknown actions are an error,
// never a silent default glyph.
type ActionDescriptor struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

var actionDescriptors = map[Action]ActionDescriptor{
	ActionForwardedForReview: {Label: "Forwarded for review", Icon: "send", Color: "blue"},
	ActionReviewerValidated:  {Label: "Validated by reviewer", Icon: "check", Color: "green"},
	ActionReviewerReturned:   {Label: "Returned by reviewer", Icon: "undo", Color: "orange"},
	ActionForwardedToHop:     {Label: "Forwarded to HoP", Icon: "arrow-up", Color: "purple"},
	ActionHopApproved:        {Label: "Approved by HoP", Icon: "check-circle", Color: "green"},
	ActionHopRejected:        {Label: "Rejected by HoP", Icon: "x-circle", Color: "red"},
	ActionReopened:           {Label: "Workflow reopened", Icon: "rotate", Color: "gray"},
}

// DescribeAction returns the descriptor for a known action.
func DescribeAction(a Action) (ActionDescriptor, error) {
	d, ok := actionDescriptors[a]
	if !ok {
		return ActionDescriptor{}, fmt.Errorf("unknown audit action %q", a)
	}
	return d, nil
}

// TimelineEntry is one formatted audit event, newest-first in a Timeline.
type TimelineEntry struct {
	Action          Action           `json:"action"`
	Descriptor      ActionDescriptor `json:"descriptor"`
	PerformedBy     string           `json:"performed_by"`
	PerformedByName string           `json:"performed_by_name,omitempty"`
	PerformedAt     time.Time        `json:"performed_at"`
	Notes           string           `json:"notes,omitempty"`
	StatusAfter     Status           `json:"status_after,omitempty"`
}

// BuildTimeline sorts entries newest-first with a stable tie-break on input
// order; entries with a zero timestamp sort as oldest. Rendering is pure: the
// same input always produces the same sequence. Returns an error if any entry
// carries an action outside the closed descriptor table.
func BuildTimeline(entries []TimelineEntry) ([]TimelineEntry, error) {
	out := make([]TimelineEntry, len(entries))
	copy(out, entries)

	for i := range out {
		d, err := DescribeAction(out[i].Action)
		if err != nil {
			return nil, err
		}
		out[i].Descriptor = d
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PerformedAt.After(out[j].PerformedAt)
	})

	return out, nil
}
