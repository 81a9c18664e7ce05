package regeneration

import "ledger-sync-service/internal/calendar"

// groupByDay splits items into per-day groups. Groups come out in order of
// first appearance and keep the input order inside each group.
func groupByDay[T any](items []T, dayOf func(T) calendar.Day) [][]T {
	index := make(map[calendar.Day]int)
	var groups [][]T
	for _, item := range items {
		day := dayOf(item)
		i, ok := index[day]
		if !ok {
			i = len(groups)
			index[day] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], item)
	}
	return groups
}

// sequenceInDay numbers a day group in reverse: with n items, position i
// (0-based) gets n-i, so the last item of the day is number 1.
func sequenceInDay(n, i int) int {
	return n - i
}
