package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Resolver turns a doctor's weekly templates into the windows that are still
// free on a given date.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the free windows for doctorID on date. With a nil date it
// returns every template of the doctor as-is. A doctor without templates gets
// an empty result rather than an error.
//
// A template window is split around booked intervals: 09:00-12:00 with a
// booking at 10:00-10:30 resolves to 09:00-10:00 and 10:30-12:00.
func (r *Resolver) Resolve(ctx context.Context, doctorID string, date *time.Time) ([]ResolvedSlot, error) {
	if date == nil {
		return r.weeklyTemplate(ctx, doctorID)
	}

	day := DateOf(*date)
	dow := Weekday(day)

	templates, err := r.repo.ListTemplates(ctx, doctorID, TemplateFilter{DayOfWeek: &dow, OnlyAvailable: true})
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if len(templates) == 0 {
		return []ResolvedSlot{}, nil
	}

	booked, err := r.repo.ListAppointments(ctx, AppointmentQuery{
		DoctorID: doctorID,
		From:     &day,
		To:       &day,
		Statuses: slotHoldingStatuses(),
	})
	if err != nil {
		return nil, fmt.Errorf("load booked appointments: %w", err)
	}

	busy := make([]interval, 0, len(booked))
	for _, a := range booked {
		if !a.Status.HoldsSlot() {
			continue
		}
		busy = append(busy, interval{start: a.StartTime, end: a.EndTime})
	}

	slots := make([]ResolvedSlot, 0, len(templates))
	for _, t := range templates {
		for _, free := range subtract(interval{start: t.StartTime, end: t.EndTime}, busy) {
			d := day
			slots = append(slots, ResolvedSlot{
				TemplateID:  t.ID,
				DoctorID:    doctorID,
				DayOfWeek:   dow,
				Date:        &d,
				StartTime:   free.start,
				EndTime:     free.end,
				IsAvailable: true,
			})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].StartTime != slots[j].StartTime {
			return slots[i].StartTime < slots[j].StartTime
		}
		return slots[i].EndTime < slots[j].EndTime
	})
	return slots, nil
}

func (r *Resolver) weeklyTemplate(ctx context.Context, doctorID string) ([]ResolvedSlot, error) {
	templates, err := r.repo.ListTemplates(ctx, doctorID, TemplateFilter{})
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	slots := make([]ResolvedSlot, 0, len(templates))
	for _, t := range templates {
		slots = append(slots, ResolvedSlot{
			TemplateID:  t.ID,
			DoctorID:    t.DoctorID,
			DayOfWeek:   t.DayOfWeek,
			StartTime:   t.StartTime,
			EndTime:     t.EndTime,
			IsAvailable: t.IsAvailable,
		})
	}
	return slots, nil
}

// fits reports whether [start, end) lies entirely inside one resolved window.
func fits(slots []ResolvedSlot, start, end string) bool {
	want := interval{start: start, end: end}
	for _, s := range slots {
		if s.IsAvailable && (interval{start: s.StartTime, end: s.EndTime}).contains(want) {
			return true
		}
	}
	return false
}
