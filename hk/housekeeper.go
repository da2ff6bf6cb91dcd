// Package hk provides mechanism for registering cleanup
// functions which are invoked at specified intervals.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/piglikeYoung/kvcache/cmn"
	"github.com/piglikeYoung/kvcache/cmn/mono"
)

const DaemonName = "housekeeper"

type (
	// CleanupFunc is invoked when its timer fires. The returned duration is
	// the interval before the next invocation; returning 0 keeps the
	// previous interval.
	CleanupFunc = func() time.Duration

	request struct {
		name            string
		f               CleanupFunc
		initialInterval time.Duration
		registering     bool
	}

	timedAction struct {
		name       string
		f          CleanupFunc
		updateTime int64 // mono nanoseconds
		interval   time.Duration
	}
	timedActions []timedAction

	housekeeper struct {
		stopCh  *cmn.StopCh
		actions *timedActions
		timer   *time.Timer
		workCh  chan request
		running sync.Once
	}
)

var DefaultHK = newHK()

func newHK() *housekeeper {
	hk := &housekeeper{
		workCh:  make(chan request, 16),
		stopCh:  cmn.NewStopCh(),
		actions: &timedActions{},
	}
	heap.Init(hk.actions)
	return hk
}

// Reg registers a cleanup callback under a unique name. The callback first
// fires after initialInterval and thereafter at whatever interval it returns.
func Reg(name string, f CleanupFunc, initialInterval ...time.Duration) {
	var interval time.Duration
	if len(initialInterval) > 0 {
		interval = initialInterval[0]
	}
	DefaultHK.running.Do(func() { go DefaultHK.run() })
	DefaultHK.workCh <- request{
		registering:     true,
		name:            name,
		f:               f,
		initialInterval: interval,
	}
}

// Unreg removes a previously registered callback. After Unreg returns the
// callback may fire at most once more; engines that need a hard guarantee
// gate their callbacks with their own stop channel.
func Unreg(name string) {
	DefaultHK.workCh <- request{
		registering: false,
		name:        name,
	}
}

func (hk *housekeeper) run() {
	hk.timer = time.NewTimer(time.Hour)
	defer hk.timer.Stop()
	for {
		select {
		case <-hk.stopCh.Listen():
			return
		case <-hk.timer.C:
			if hk.actions.Len() == 0 {
				break
			}
			// Run callbacks which are past their firing time and reschedule.
			now := mono.NanoTime()
			for hk.actions.Len() > 0 && (*hk.actions)[0].updateTime <= now {
				act := (*hk.actions)[0]
				interval := act.f()
				if interval == 0 {
					interval = act.interval
				}
				(*hk.actions)[0].interval = interval
				(*hk.actions)[0].updateTime = mono.NanoTime() + interval.Nanoseconds()
				heap.Fix(hk.actions, 0)
			}
			hk.updateTimer()
		case req := <-hk.workCh:
			if req.registering {
				cmn.AssertMsg(hk.byName(req.name) == -1, "duplicate hk registration: "+req.name)
				initial := req.initialInterval
				if initial == 0 {
					initial = req.f()
				}
				heap.Push(hk.actions, timedAction{
					name:       req.name,
					f:          req.f,
					interval:   initial,
					updateTime: mono.NanoTime() + initial.Nanoseconds(),
				})
			} else {
				if idx := hk.byName(req.name); idx != -1 {
					heap.Remove(hk.actions, idx)
				}
			}
			hk.updateTimer()
		}
	}
}

func (hk *housekeeper) updateTimer() {
	if hk.actions.Len() == 0 {
		hk.timer.Reset(time.Hour)
		return
	}
	d := time.Duration((*hk.actions)[0].updateTime - mono.NanoTime())
	if d < time.Millisecond {
		d = time.Millisecond
	}
	hk.timer.Reset(d)
}

func (hk *housekeeper) byName(name string) int {
	for i, act := range *hk.actions {
		if act.name == name {
			return i
		}
	}
	return -1
}

/////////////////////
// timedActions    //
/////////////////////

func (ta timedActions) Len() int            { return len(ta) }
func (ta timedActions) Less(i, j int) bool  { return ta[i].updateTime < ta[j].updateTime }
func (ta timedActions) Swap(i, j int)       { ta[i], ta[j] = ta[j], ta[i] }
func (ta timedActions) Peek() *timedAction  { return &ta[0] }
func (ta *timedActions) Push(x interface{}) { *ta = append(*ta, x.(timedAction)) }
func (ta *timedActions) Pop() interface{} {
	old := *ta
	n := len(old)
	item := old[n-1]
	*ta = old[:n-1]
	return item
}
