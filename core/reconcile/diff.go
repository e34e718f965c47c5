package reconcile

// ComputeDifference partitions the union of two identity sets into the
// identities present only on the left, only on the right, and on both.
func ComputeDifference(left, right IdentitySet) DifferenceResult {
	res := DifferenceResult{
		LeftOnly:  make(IdentitySet),
		RightOnly: make(IdentitySet),
		Both:      make(IdentitySet),
	}

	for id := range left {
		if right.Has(id) {
			res.Both.Add(id)
		} else {
			res.LeftOnly.Add(id)
		}
	}
	for id := range right {
		if !left.Has(id) {
			res.RightOnly.Add(id)
		}
	}

	return res
}
