/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package segment splits a linear range of work items evenly across worker identities.
// segment 包将线性的工作项范围平均分配给各个 worker 标识。
//
// Worker identities are 0-based: a pool of count workers uses ids [0, count-1].
// Worker 标识从 0 开始：count 个 worker 使用 [0, count-1] 范围内的 id。
//
// Every worker can compute its own slice without coordination:
// 每个 worker 无需协调即可计算自己的数据片段：
//
//	r, _ := segment.Segment(wc.ID, wc.Count, total)
//	for uid := r.Start; uid <= r.End; uid++ {
//		// process uid
//	}
package segment

import (
	"errors"
	"fmt"
)

// Errors returned for invalid partition requests
// 无效分片请求返回的错误
var (
	// ErrInvalidCount indicates the worker count is less than 1
	// ErrInvalidCount 表示 worker 数量小于 1
	ErrInvalidCount = errors.New("segment: worker count must be at least 1")

	// ErrInvalidID indicates the worker id is outside [0, count-1]
	// ErrInvalidID 表示 worker id 不在 [0, count-1] 范围内
	ErrInvalidID = errors.New("segment: worker id out of range")

	// ErrInvalidTotal indicates a negative number of items
	// ErrInvalidTotal 表示数据条数为负数
	ErrInvalidTotal = errors.New("segment: total must not be negative")
)

// Range is the inclusive slice [Start, End] assigned to one worker.
// Range 是分配给一个 worker 的闭区间 [Start, End]。
// An empty range has Size 0 and End == Start-1.
// 空范围的 Size 为 0，且 End == Start-1。
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Size  int `json:"size"`
}

// Empty reports whether the range carries no work.
// Empty 表示该范围是否没有工作项。
func (r Range) Empty() bool {
	return r.Size == 0
}

// Contains reports whether n falls inside the range.
// Contains 表示 n 是否落在该范围内。
func (r Range) Contains(n int) bool {
	return r.Size > 0 && n >= r.Start && n <= r.End
}

// Each calls fn for every item of the range in ascending order and stops at the first error.
// Each 按升序对范围内的每一项调用 fn，遇到第一个错误时停止。
func (r Range) Each(fn func(n int) error) error {
	for n := r.Start; n <= r.End; n++ {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

func (r Range) String() string {
	if r.Empty() {
		return "[]"
	}
	return fmt.Sprintf("[%d, %d] (%d)", r.Start, r.End, r.Size)
}

// Segment returns the slice of [1, total] owned by worker id out of count workers.
// Segment 返回 count 个 worker 中 id 对应的 [1, total] 数据片段。
func Segment(id, count, total int) (Range, error) {
	if total < 0 {
		return Range{}, ErrInvalidTotal
	}
	return split(id, count, 1, total)
}

// SegmentRange is Segment over the domain [rangeStart, rangeEnd] instead of [1, total].
// SegmentRange 与 Segment 相同，但以 [rangeStart, rangeEnd] 作为数据域。
// rangeEnd == rangeStart-1 describes an empty domain.
// rangeEnd == rangeStart-1 表示空数据域。
func SegmentRange(id, count, rangeStart, rangeEnd int) (Range, error) {
	if rangeEnd < rangeStart && rangeEnd != rangeStart-1 {
		return Range{}, fmt.Errorf("%w: range [%d, %d] is inverted", ErrInvalidTotal, rangeStart, rangeEnd)
	}
	total := rangeEnd - rangeStart + 1
	if rangeEnd >= rangeStart && total <= 0 {
		return Range{}, fmt.Errorf("%w: range [%d, %d] is too large", ErrInvalidTotal, rangeStart, rangeEnd)
	}
	return split(id, count, rangeStart, total)
}

// Table returns the ranges of every worker identity in id order.
// Table 按 id 顺序返回所有 worker 标识的范围。
func Table(count, total int) ([]Range, error) {
	if total < 0 {
		return nil, ErrInvalidTotal
	}
	return TableRange(count, 1, total)
}

// TableRange returns the ranges of every worker identity over [rangeStart, rangeEnd].
// TableRange 返回 [rangeStart, rangeEnd] 上所有 worker 标识的范围。
func TableRange(count, rangeStart, rangeEnd int) ([]Range, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}
	ranges := make([]Range, count)
	for id := 0; id < count; id++ {
		r, err := SegmentRange(id, count, rangeStart, rangeEnd)
		if err != nil {
			return nil, err
		}
		ranges[id] = r
	}
	return ranges, nil
}

// split distributes total items starting at first.
// The first total%count identities receive one extra item.
func split(id, count, first, total int) (Range, error) {
	if count < 1 {
		return Range{}, ErrInvalidCount
	}
	if id < 0 || id >= count {
		return Range{}, fmt.Errorf("%w: id %d, count %d", ErrInvalidID, id, count)
	}

	base := total / count
	remain := total % count

	size := base
	offset := id*base + remain
	if id < remain {
		size++
		offset = id * size
	}

	start := first + offset
	return Range{Start: start, End: start + size - 1, Size: size}, nil
}
