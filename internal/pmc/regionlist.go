package pmc

// regionList is an unordered set of regions with identity removal.
type regionList struct {
	items []*Region
}

func (l *regionList) len() int { return len(l.items) }

func (l *regionList) push(r *Region) {
	l.items = append(l.items, r)
}

func (l *regionList) contains(r *Region) bool {
	for _, it := range l.items {
		if it == r {
			return true
		}
	}
	return false
}

func (l *regionList) remove(r *Region) bool {
	for i, it := range l.items {
		if it == r {
			l.removeAt(i)
			return true
		}
	}
	return false
}

func (l *regionList) removeAt(i int) {
	last := len(l.items) - 1
	l.items[i] = l.items[last]
	l.items[last] = nil
	l.items = l.items[:last]
}

func (l *regionList) reset() {
	clear(l.items)
	l.items = l.items[:0]
}
