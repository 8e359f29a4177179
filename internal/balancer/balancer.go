// Package balancer implements the duty balancer (C12): a shared 0-100
// resource multiple PWMs compete for, normalizing their requests down
// proportionally when the sum exceeds the resource. Grounded on §4.12 of
// the controller spec and the original firmware's Balancer.h
// request/grant/forget cycle.
package balancer

import "brewbox-controlbox/internal/object"

// Balancer mediates requests from any number of clients, keyed by a
// caller-assigned channel id, against a shared 0-100 resource.
type Balancer struct {
	requested map[uint16]uint8
	granted   map[uint16]uint8
}

func New() *Balancer {
	return &Balancer{requested: map[uint16]uint8{}, granted: map[uint16]uint8{}}
}

// Allot registers channel's requested duty for this tick and returns its
// granted share, recomputed across every channel registered so far this
// tick. Clients re-register every update (§4.12: "invalid PWMs register
// requested = 0"). A channel's last request stays in the set until it
// registers again or Forget removes it.
func (b *Balancer) Allot(channel uint16, requested uint8, now object.UpdateTime) uint8 {
	if requested > 100 {
		requested = 100
	}
	b.requested[channel] = requested
	b.recompute()
	return b.granted[channel]
}

// Recompute distributes the resource: if total requested demand fits
// within 100, everyone gets exactly what they asked; otherwise every
// request is scaled down proportionally to a total of 100. Each share is
// rounded down, so the granted sum can fall short of 100.
func (b *Balancer) recompute() {
	var total uint32
	for _, r := range b.requested {
		total += uint32(r)
	}
	if total <= 100 {
		for ch, r := range b.requested {
			b.granted[ch] = r
		}
		return
	}
	for ch, r := range b.requested {
		b.granted[ch] = uint8(uint32(r) * 100 / total)
	}
}

// Forget removes a channel's registration, e.g. when its PWM is deleted.
func (b *Balancer) Forget(channel uint16) {
	delete(b.requested, channel)
	delete(b.granted, channel)
}

// Granted reports a channel's most recently computed share without
// registering a new request.
func (b *Balancer) Granted(channel uint16) uint8 { return b.granted[channel] }
