// Copyright 2021 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zfind // import "github.com/sourcegraph/zfind"

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStatsAdd(t *testing.T) {
	var s Stats
	s.Add(Stats{Processed: 3, Matched: 1, Wait: time.Second})
	s.Add(Stats{Processed: 2, Matched: 2, Crashes: 1, FlushReason: FlushReasonTimerExpired})
	s.Add(Stats{FlushReason: FlushReasonFinalFlush})

	want := Stats{
		Processed:   5,
		Matched:     3,
		Crashes:     1,
		Wait:        time.Second,
		FlushReason: FlushReasonTimerExpired,
	}
	if d := cmp.Diff(want, s); d != "" {
		t.Errorf("mismatch (-want +got):\n%s", d)
	}
}

func TestStatsZero(t *testing.T) {
	var nilStats *Stats
	if !nilStats.Zero() {
		t.Error("nil stats should be zero")
	}
	if !(&Stats{Duration: time.Second}).Zero() {
		t.Error("duration alone should not count")
	}
	if (&Stats{Processed: 1}).Zero() {
		t.Error("processed stats should not be zero")
	}
}

func TestFlushReasonString(t *testing.T) {
	for fr, want := range map[FlushReason]string{
		FlushReasonTimerExpired: "timer_expired",
		FlushReasonFinalFlush:   "final_flush",
		FlushReasonMaxSize:      "max_size_reached",
		0:                       "none",
	} {
		if got := fr.String(); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}
