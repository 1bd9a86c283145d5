package booking

// FreeTicks walks a working window in SlotMinutes increments and returns the
// tick starts that do not overlap any busy interval. A final tick that would
// extend past the window end is excluded. Pure function of its inputs.
func FreeTicks(win Window, busy []BusyInterval) []TimeOfDay {
	if win.End <= win.Start {
		return nil
	}

	var free []TimeOfDay
	for t := win.Start; t.Add(SlotMinutes) <= win.End; t = t.Add(SlotMinutes) {
		if !overlapsAny(t, busy) {
			free = append(free, t)
		}
	}
	return free
}

func overlapsAny(start TimeOfDay, busy []BusyInterval) bool {
	for _, b := range busy {
		if b.Overlaps(start, SlotMinutes) {
			return true
		}
	}
	return false
}
