package main

import (
	"reflect"
	"testing"

	"github.com/seekflac/flac/meta"
)

func TestParseBlockNums(t *testing.T) {
	golden := []struct {
		in   string
		want []int
		err  bool
	}{
		{in: "", want: nil},
		{in: "0", want: []int{0}},
		{in: "2,0, 1", want: []int{2, 0, 1}},
		{in: "1,x", err: true},
		{in: "-1", err: true},
	}
	for _, g := range golden {
		got, err := parseBlockNums(g.in)
		if g.err {
			if err == nil {
				t.Errorf("%q: expected error", g.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error; %v", g.in, err)
			continue
		}
		if !reflect.DeepEqual(got, g.want) {
			t.Errorf("%q: block numbers mismatch; expected %v, got %v", g.in, g.want, got)
		}
	}
}

func Example_listCueSheet() {
	listCueSheet(&meta.CueSheet{
		MCN:            "1234567890123",
		NLeadInSamples: 88200,
		IsCompactDisc:  true,
		Tracks: []meta.CueSheetTrack{
			{Num: 1, ISRC: "USRC17607839", IsAudio: true, Indicies: []meta.CueSheetTrackIndex{{Offset: 0, Num: 1}}},
			{Offset: 2421384, Num: 170, IsAudio: true},
		},
	})
	// Output:
	//   media catalog number: 1234567890123
	//   lead-in: 88200
	//   is CD: true
	//   number of tracks: 2
	//     track[0]
	//       offset: 0
	//       number: 1
	//       ISRC: USRC17607839
	//       type: AUDIO
	//       pre-emphasis: false
	//       number of index points: 1
	//         index[0]
	//           offset: 0
	//           number: 1
	//     track[1]
	//       offset: 2421384
	//       number: 170 (LEAD-OUT)
}
