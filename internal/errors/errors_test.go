// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package errors

import "testing"

func TestErrorDebugString(t *testing.T) {
	tests := []struct {
		desc string
		err  error
		want string
	}{
		{
			desc: "With Op, Code, and string",
			err:  E(Op("dictlist.Add"), AlreadyExists, "key 7 already present"),
			want: "dictlist.Add: ALREADY_EXISTS: key 7 already present",
		},
		{
			desc: "With Op, Code and error",
			err:  E(Op("processqueue.New"), InvalidArgument, New("negative interval")),
			want: "processqueue.New: INVALID_ARGUMENT: negative interval",
		},
	}

	for _, tc := range tests {
		if got := tc.err.(*Error).DebugString(); got != tc.want {
			t.Errorf("%s: got=%q, want=%q", tc.desc, got, tc.want)
		}
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		desc string
		err  error
		want string
	}{
		{
			desc: "With Op, Code, and string",
			err:  E(Op("dictlist.Add"), AlreadyExists, "key 7 already present"),
			want: "ALREADY_EXISTS: key 7 already present",
		},
		{
			desc: "Without Code",
			err:  E(Op("processqueue.Add"), "queue closed"),
			want: "queue closed",
		},
	}

	for _, tc := range tests {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("%s: got=%q, want=%q", tc.desc, got, tc.want)
		}
	}
}

func TestErrorIs(t *testing.T) {
	var ErrCustom = New("custom sentinel error")

	tests := []struct {
		desc   string
		err    error
		target error
		want   bool
	}{
		{
			desc:   "should unwrap one level",
			err:    E(Op("Foo"), ErrCustom),
			target: ErrCustom,
			want:   true,
		},
		{
			desc:   "should unwrap nested errors",
			err:    E(Op("Bar"), Internal, E(Op("Foo"), ErrCustom)),
			target: ErrCustom,
			want:   true,
		},
	}

	for _, tc := range tests {
		if got := Is(tc.err, tc.target); got != tc.want {
			t.Errorf("%s: got=%t, want=%t", tc.desc, got, tc.want)
		}
	}
}

func TestCanonicalCode(t *testing.T) {
	tests := []struct {
		desc string
		err  error
		want Code
	}{
		{
			desc: "without nesting",
			err:  E(Op("Foo"), NotFound, "key not found"),
			want: NotFound,
		},
		{
			desc: "with nesting",
			err:  E(FailedPrecondition, E(NotFound)),
			want: FailedPrecondition,
		},
		{
			desc: "returns innermost code when no code is set",
			err:  E(Op("Bar"), E(Op("Foo"), OutOfRange, "index 9")),
			want: OutOfRange,
		},
		{
			desc: "returns Unspecified if err is not *Error",
			err:  New("plain error"),
			want: Unspecified,
		},
		{
			desc: "returns Unspecified if err is nil",
			err:  nil,
			want: Unspecified,
		},
	}

	for _, tc := range tests {
		if got := CanonicalCode(tc.err); got != tc.want {
			t.Errorf("%s: got=%s, want=%s", tc.desc, got, tc.want)
		}
	}
}
