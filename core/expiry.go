package core

import "sync/atomic"

// expiryProvider hands out tickets tied to the current document epoch.
// Clearing the console or disposing it bumps the epoch, expiring every
// outstanding ticket at once. Heavy classification results carry a
// ticket and are dropped when it no longer matches.
type expiryProvider struct {
	epoch atomic.Int64
}

func (p *expiryProvider) Ticket() expirable {
	return expirable{p: p, epoch: p.epoch.Load()}
}

func (p *expiryProvider) ExpireAll() {
	p.epoch.Add(1)
}

type expirable struct {
	p     *expiryProvider
	epoch int64
}

func (e expirable) Expired() bool {
	return e.p == nil || e.p.epoch.Load() != e.epoch
}
