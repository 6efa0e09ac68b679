// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package workpool

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cpmech/gosl/chk"
)

func Test_map_visits_every_index(tst *testing.T) {
	n := 200
	var seen [200]int32
	Map(context.Background(), n, 8, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	})
	for _, c := range seen {
		chk.IntAssert(int(c), 1)
	}
}

func Test_reduce_is_order_independent_of_goroutine_completion(tst *testing.T) {
	n := 1000
	sum := Reduce(context.Background(), n, 16, func(i int) int { return i }, 0, func(acc, v int) int { return acc + v })
	want := n * (n - 1) / 2
	chk.IntAssert(sum, want)
}

func Test_map_cancellation_is_best_effort_safe(tst *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var count int32
	Map(ctx, 100, 4, func(i int) { atomic.AddInt32(&count, 1) })
	if count > 100 {
		tst.Errorf("count must never exceed n")
	}
}
