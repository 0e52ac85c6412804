package controllers

import (
	"reflect"
	"testing"
)

func TestCombineRecipientIDs(t *testing.T) {
	tests := []struct {
		name          string
		studentUserID uint
		staffIDs      []uint
		want          []uint
	}{
		{"student plus staff", 10, []uint{2, 3}, []uint{10, 2, 3}},
		{"student without linked user", 0, []uint{2, 3}, []uint{2, 3}},
		{"student is also staff", 2, []uint{2, 3}, []uint{2, 3}},
		{"duplicate staff collapsed", 10, []uint{2, 2, 3}, []uint{10, 2, 3}},
		{"zero staff id dropped", 10, []uint{0, 3}, []uint{10, 3}},
		{"nobody to notify", 0, nil, []uint{}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := combineRecipientIDs(tc.studentUserID, tc.staffIDs)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("combineRecipientIDs(%d, %v) = %v, want %v", tc.studentUserID, tc.staffIDs, got, tc.want)
			}
		})
	}
}
