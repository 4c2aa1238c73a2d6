package domain

import (
	"sort"

	"github.com/google/uuid"
)

// SeatRange returns {1..n} in ascending order.
func SeatRange(n int) []int {
	if n <= 0 {
		return []int{}
	}

	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}

	return out
}

// SeatsDifference returns the seats of a that are not in b, keeping a's order.
func SeatsDifference(a, b []int) []int {
	set := make(map[int]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}

	out := []int{}
	for _, s := range a {
		if _, ok := set[s]; !ok {
			out = append(out, s)
		}
	}

	return out
}

// SeatsUnion returns the sorted, de-duplicated union of a and b.
func SeatsUnion(a, b []int) []int {
	set := make(map[int]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}

	out := make([]int, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Ints(out)

	return out
}

// SeatsIntersect returns the sorted seats present in both a and b.
func SeatsIntersect(a, b []int) []int {
	set := make(map[int]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}

	seen := make(map[int]struct{})
	out := []int{}
	for _, s := range a {
		if _, ok := set[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Ints(out)

	return out
}

// SeatsInRange keeps the seats within [1, total], sorted and de-duplicated.
func SeatsInRange(seats []int, total int) []int {
	out := []int{}
	for _, s := range SeatsUnion(seats, nil) {
		if s >= 1 && s <= total {
			out = append(out, s)
		}
	}

	return out
}

// DuplicateSeats returns the seats that occur more than once, sorted.
func DuplicateSeats(seats []int) []int {
	count := make(map[int]int, len(seats))
	for _, s := range seats {
		count[s]++
	}

	out := []int{}
	for s, n := range count {
		if n > 1 {
			out = append(out, s)
		}
	}
	sort.Ints(out)

	return out
}

// SeatHolders lists, for each of seats held by at least one booking, the
// bookings that hold it. Seats are sorted and so are booking IDs per seat.
func SeatHolders(bookings []Booking, seats []int) []SeatHolder {
	want := make(map[int]bool, len(seats))
	for _, s := range seats {
		want[s] = true
	}

	by := make(map[int][]uuid.UUID)
	for _, b := range bookings {
		for _, s := range b.Seats {
			if want[s] {
				by[s] = append(by[s], b.ID)
			}
		}
	}

	out := make([]SeatHolder, 0, len(by))
	for _, s := range SeatsUnion(seats, nil) {
		ids := by[s]
		if len(ids) == 0 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		out = append(out, SeatHolder{Seat: s, BookingIDs: ids})
	}

	return out
}

// AuditSeats checks that available and held seats partition [1, total].
// held must contain every seat of every active booking, repeats included.
func AuditSeats(total int, available, held []int) SeatAudit {
	a := SeatAudit{
		TotalSeats: total,
		Available:  SeatsUnion(available, nil),
		Held:       SeatsUnion(held, nil),
		DoubleHeld: DuplicateSeats(held),
		Overlap:    SeatsIntersect(available, held),
		Conflicts:  []SeatHolder{},
	}

	all := SeatsUnion(available, held)
	a.Missing = SeatsDifference(SeatRange(total), all)
	a.OutOfRange = SeatsDifference(all, SeatRange(total))

	a.Consistent = len(a.Missing) == 0 &&
		len(a.DoubleHeld) == 0 &&
		len(a.Overlap) == 0 &&
		len(a.OutOfRange) == 0 &&
		len(DuplicateSeats(available)) == 0

	return a
}
