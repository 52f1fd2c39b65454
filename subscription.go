package datamodel

// SubscriptionID is the handle returned by a successful Subscribe call,
// usable with Unsubscribe in addition to subscriber identity (spec §4.3).
type SubscriptionID string

// Notification is delivered to a subscription's callback whenever its
// filter predicate holds for an accepted write (spec §4.3). It is also the
// payload the protocol manager wraps into an Event message (spec §4.6).
type Notification struct {
	NodeRef        string
	Value          Value
	SubscriptionID SubscriptionID
}

// subscription is one (subscriber_id, filter, callback_binding) triple
// attached to a variable, plus the per-subscription state its filter needs
// (last-reported value for DataChange, current membership for Range). A
// subscription owns only the callback binding and the subscriber's
// identity; it never owns the subscriber itself (spec §9 design note).
type subscription struct {
	id           SubscriptionID
	subscriberID string
	filter       Filter
	callback     func(Notification)
	removed      bool

	lastReported Value
	wasInRange   bool
}

// shouldFire evaluates rec's filter against the transition from previous to
// next, using the subscription's own tracked state (not the raw previous
// write) where the filter semantics call for it.
func (rec *subscription) shouldFire(next Value) bool {
	switch rec.filter.Kind {
	case FilterAll:
		return true
	case FilterDataChange:
		return rec.filter.shouldFireDataChange(rec.lastReported, next)
	case FilterRange:
		nf, _ := next.Float64()
		return rec.filter.shouldFireRange(rec.wasInRange, rec.filter.inRange(nf))
	}
	panic("datamodel: unreachable FilterKind")
}

// advanceState updates the subscription's tracked filter state after a
// write. DataChange tracks "last *reported*" value, updated only when a
// notification actually fires; Range tracks the variable's true current
// membership, updated on every write so a later transition is detected even
// across several non-firing interior writes.
func (rec *subscription) advanceState(next Value, fired bool) {
	switch rec.filter.Kind {
	case FilterDataChange:
		if fired {
			rec.lastReported = next
		}
	case FilterRange:
		nf, _ := next.Float64()
		rec.wasInRange = rec.filter.inRange(nf)
	}
}

// subscriberSet is the ordered collection of subscriptions attached to one
// variable. It is an adaptation, not a copy, of the teacher's
// publishSubjectImpl observer registry (samber-ro/subject_publish.go): the
// teacher uses a sync.Map keyed by an atomic index because it never
// promises delivery order; this spec requires subscription-order delivery
// (§4.3), which sync.Map cannot give, so the registry here is a plain
// ordered slice instead. Single-threaded-per-manager (§5) makes that safe
// without extra locking.
type subscriberSet struct {
	subs []*subscription
}

// subscribe registers a new subscription and returns its id.
func (s *subscriberSet) subscribe(subscriberID string, filter Filter, current Value, callback func(Notification)) SubscriptionID {
	rec := &subscription{
		id:           SubscriptionID(newIdentifier()),
		subscriberID: subscriberID,
		filter:       filter,
		callback:     callback,
	}
	if filter.Kind == FilterDataChange {
		rec.lastReported = current
	}
	if filter.Kind == FilterRange {
		nf, _ := current.Float64()
		rec.wasInRange = filter.inRange(nf)
	}
	s.subs = append(s.subs, rec)
	return rec.id
}

// unsubscribeByID removes by explicit handle. Removing a handle not present
// is a no-op (spec §4.3).
func (s *subscriberSet) unsubscribeByID(id SubscriptionID) bool {
	for _, rec := range s.subs {
		if rec.id == id && !rec.removed {
			rec.removed = true
			return true
		}
	}
	return false
}

// unsubscribeBySubscriber removes every live subscription owned by the
// given subscriber identity.
func (s *subscriberSet) unsubscribeBySubscriber(subscriberID string) bool {
	found := false
	for _, rec := range s.subs {
		if rec.subscriberID == subscriberID && !rec.removed {
			rec.removed = true
			found = true
		}
	}
	return found
}

// notify delivers next to every live subscription in subscription order
// whose filter predicate holds. It snapshots the slice length so a
// subscription added during this pass is not invoked until the next write
// (spec §4.3), and consults each record's removed flag on every iteration
// so an unsubscribe performed by an earlier callback in the same pass takes
// effect for subsequent ones immediately (spec §4.3, §8 unsubscribe
// atomicity).
func (s *subscriberSet) notify(nodeRef string, next Value) {
	n := len(s.subs)
	for i := 0; i < n; i++ {
		rec := s.subs[i]
		if rec.removed {
			continue
		}
		fired := rec.shouldFire(next)
		rec.advanceState(next, fired)
		if fired {
			rec.callback(Notification{NodeRef: nodeRef, Value: next, SubscriptionID: rec.id})
		}
	}
}

// empty reports whether the set has no live subscriptions, used by Tree
// removal to skip a teardown pass cheaply.
func (s *subscriberSet) empty() bool {
	for _, rec := range s.subs {
		if !rec.removed {
			return false
		}
	}
	return true
}

// teardownAll marks every subscription removed, used when the owning
// variable is deleted from the tree (spec §3 lifecycle: removal
// "deregisters them from any subscription engine").
func (s *subscriberSet) teardownAll() {
	for _, rec := range s.subs {
		rec.removed = true
	}
}
