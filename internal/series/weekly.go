package series

// AggregateWeekly keeps the last observation of every ISO-8601 week, ascending by date.
func AggregateWeekly(daily []Observation) []Observation {
	type weekKey struct{ year, week int }

	last := make(map[weekKey]Observation, len(daily)/5+1)
	for _, o := range daily {
		year, week := o.Date.ISOWeek()
		k := weekKey{year, week}
		if cur, ok := last[k]; !ok || !o.Date.Before(cur.Date) {
			last[k] = o
		}
	}

	out := make([]Observation, 0, len(last))
	for _, o := range last {
		out = append(out, o)
	}
	SortByDate(out)
	return out
}
